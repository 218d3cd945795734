package privacylog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func captureLog(t *testing.T, log func(l *slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	log(logger)
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output not json: %v (%s)", err, buf.String())
	}
	return record
}

func TestSecretsRedacted(t *testing.T) {
	record := captureLog(t, func(l *slog.Logger) {
		l.Info("backup", "password", "hunter2", "shared_key", "aabbcc")
	})
	if record["password"] != redactedValue {
		t.Fatalf("password must be redacted, got %v", record["password"])
	}
	if record["shared_key"] != redactedValue {
		t.Fatalf("key material must be redacted, got %v", record["shared_key"])
	}
}

func TestIdentifiersFingerprinted(t *testing.T) {
	record := captureLog(t, func(l *slog.Logger) {
		l.Info("sync", "contact_id", "deadbeef", "count", 3)
	})
	if _, ok := record["contact_id"]; ok {
		t.Fatal("plaintext contact_id must not appear")
	}
	fp, ok := record["contact_id_fp"].(string)
	if !ok || !strings.HasPrefix(fp, "fp_") {
		t.Fatalf("contact_id must be fingerprinted, got %v", record["contact_id_fp"])
	}
	if record["count"].(float64) != 3 {
		t.Fatal("benign attrs must pass through")
	}
}

func TestFingerprintStableWithinBoot(t *testing.T) {
	a := FingerprintID("deadbeef")
	b := FingerprintID("deadbeef")
	c := FingerprintID("cafebabe")
	if a != b {
		t.Fatal("fingerprint must be stable within one boot")
	}
	if a == c {
		t.Fatal("distinct ids must fingerprint differently")
	}
	if FingerprintID("  ") != "" {
		t.Fatal("blank ids fingerprint to empty")
	}
}
