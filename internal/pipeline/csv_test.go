package pipeline

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadCSV(t *testing.T) {
	in := "\ufeffText,Source\n" +
		"Checkout is slow,survey\n" +
		"\"Love it, really\",\n" +
		"   ,survey\n" +
		"Too pricey\n"

	got, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	want := []NewFeedback{
		{Text: "Checkout is slow", Source: "survey"},
		{Text: "Love it, really", Source: DefaultCSVSource},
		{Text: "Too pricey", Source: DefaultCSVSource},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVFeedbackColumn(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("id,feedback\n1,Great support team\n"))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Great support team" || got[0].Source != DefaultCSVSource {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestReadCSVRequiresTextColumn(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("id,comment\n1,hello\n")); err == nil {
		t.Fatal("expected error for csv without text or feedback column")
	}
	got, err := ReadCSV(strings.NewReader(""))
	if err != nil || len(got) != 0 {
		t.Fatalf("empty csv = %v, %v", got, err)
	}
}
