package model

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	p := &Project{Status: StatusDirecting}
	if got := p.EffectiveStatus(); got != StatusDirecting {
		t.Errorf("live project effective status = %s", got)
	}

	at := StatusVoiceover
	failed := &Project{Status: StatusFailed, FailedAtStatus: &at}
	if got := failed.EffectiveStatus(); got != StatusVoiceover {
		t.Errorf("failed project effective status = %s, want voiceover", got)
	}

	// Failure with no recorded origin falls back to the sink itself.
	bare := &Project{Status: StatusFailed}
	if got := bare.EffectiveStatus(); got != StatusFailed {
		t.Errorf("bare failed effective status = %s", got)
	}
}

func TestCancelRequested(t *testing.T) {
	p := &Project{}
	if p.CancelRequested() {
		t.Error("fresh project must not report a cancel request")
	}
	now := time.Now()
	p.CancelRequestedAt = &now
	if !p.CancelRequested() {
		t.Error("set timestamp must report a cancel request")
	}
}

func TestAssetMetadataHelpers(t *testing.T) {
	a := &Asset{}
	if a.LastError() != "" {
		t.Error("empty metadata must read as no error")
	}
	a.SetMeta(MetaLastError, "timeout waiting for provider")
	if got := a.LastError(); got != "timeout waiting for provider" {
		t.Errorf("LastError = %q", got)
	}
	a.SetMeta(MetaSupersededBy, "asset-2")
	if a.Metadata[MetaSupersededBy] != "asset-2" {
		t.Errorf("metadata = %v", a.Metadata)
	}
}

func TestIsKeyframe(t *testing.T) {
	for _, at := range []AssetType{AssetKeyframeStart, AssetKeyframeEnd} {
		if !(&Asset{Type: at}).IsKeyframe() {
			t.Errorf("%s must be a keyframe", at)
		}
	}
	for _, at := range []AssetType{AssetVideo, AssetAudio, AssetBroll} {
		if (&Asset{Type: at}).IsKeyframe() {
			t.Errorf("%s must not be a keyframe", at)
		}
	}
}
