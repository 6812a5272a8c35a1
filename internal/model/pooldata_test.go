package model

import "testing"

func TestPoolDataSentinels(t *testing.T) {
	var zero PoolData
	if !zero.IsZero() {
		t.Error("zero value not recognized as zero")
	}
	if zero.DegenerateOffline() {
		t.Error("zero value misread as degenerate offline")
	}

	bare := PoolData{Status: StatusOffline}
	if !bare.DegenerateOffline() {
		t.Error("bare offline not recognized as degenerate")
	}
	if bare.IsZero() {
		t.Error("bare offline misread as zero")
	}

	detailed := PoolData{Status: StatusOffline, DeviceID: "24PR3-1928", LastSeen: "13.11.24, 07:10"}
	if detailed.DegenerateOffline() {
		t.Error("offline with device detail misread as degenerate")
	}

	var online PoolData
	online.Set(KindPH, 7.2, false)
	online.Status = StatusOnline
	if online.IsZero() || online.DegenerateOffline() {
		t.Error("online snapshot misread as sentinel")
	}
}
