package discovery

import (
	"errors"
	"strings"
	"testing"

	"github.com/linkmq/linkmq-go/pkg/version"
)

func TestTXTRoundTrip(t *testing.T) {
	info := &ServiceInfo{Instance: "node-a", Port: 4000, NodeID: "0123456789abcdef", TLS: true}
	strs := TXTRecordsToStrings(EncodeTXT(info))

	want := []string{"id=0123456789abcdef", "tls=1", "v=" + version.Current}
	if strings.Join(strs, ",") != strings.Join(want, ",") {
		t.Fatalf("TXT strings = %v, want %v", strs, want)
	}

	var svc Service
	if err := DecodeTXT(StringsToTXTRecords(strs), &svc); err != nil {
		t.Fatalf("DecodeTXT: %v", err)
	}
	if svc.NodeID != info.NodeID || !svc.TLS || svc.Version != version.Current {
		t.Errorf("decoded %+v", svc)
	}
}

func TestDecodeTXTErrors(t *testing.T) {
	var svc Service
	if err := DecodeTXT(TXTRecordMap{TXTKeyTLS: "1"}, &svc); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("missing id = %v, want ErrMissingRequired", err)
	}
	if err := DecodeTXT(TXTRecordMap{TXTKeyID: "xyz"}, &svc); !errors.Is(err, ErrInvalidID) {
		t.Errorf("bad id = %v, want ErrInvalidID", err)
	}
	if err := DecodeTXT(TXTRecordMap{TXTKeyID: "0123456789abcdef", TXTKeyVersion: "2.0"}, &svc); !errors.Is(err, version.ErrIncompatible) {
		t.Errorf("version 2.0 = %v, want ErrIncompatible", err)
	}
	if err := DecodeTXT(TXTRecordMap{TXTKeyID: "0123456789abcdef"}, &svc); err != nil {
		t.Errorf("record without version = %v", err)
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "b=x=y", ""})
	if txt["a"] != "1" || txt["b"] != "x=y" {
		t.Errorf("values = %v", txt)
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v; want empty present", v, ok)
	}
	if len(txt) != 3 {
		t.Errorf("len = %d, want 3", len(txt))
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := ValidateInstanceName(""); err == nil {
		t.Error("empty name accepted")
	}
	if err := ValidateInstanceName(strings.Repeat("n", MaxInstanceNameLen+1)); err == nil {
		t.Error("long name accepted")
	}
	if err := ValidateInstanceName("node-a"); err != nil {
		t.Errorf("node-a: %v", err)
	}
}
