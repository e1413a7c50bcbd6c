package versions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
)

type mockVersionReader struct {
	history map[string][]domain.ContentVersion
	err     error
}

func (m *mockVersionReader) Versions(_ context.Context, itemID string) ([]domain.ContentVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.history[itemID], nil
}

func TestResolve_IntervalBoundaries(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// X has V1 valid [t0, t1) and V2 valid [t1, inf)
	svc := New(&mockVersionReader{history: map[string][]domain.ContentVersion{
		"X": {
			{ItemID: "X", VersionID: "V1", ValidFrom: t0, ValidTo: &t1},
			{ItemID: "X", VersionID: "V2", ValidFrom: t1},
		},
	}})
	ctx := context.Background()

	tests := []struct {
		name    string
		asOf    time.Time
		want    string
		wantErr error
	}{
		{"just before boundary", t1.Add(-time.Millisecond), "V1", nil},
		{"exactly at boundary", t1, "V2", nil},
		{"inside first interval", t0.Add(time.Hour), "V1", nil},
		{"far future hits open version", t1.AddDate(10, 0, 0), "V2", nil},
		{"before first version", t0.Add(-time.Second), "", domain.ErrNoValidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := svc.Resolve(ctx, "X", tt.asOf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if v.VersionID != tt.want {
				t.Errorf("resolved %s, want %s", v.VersionID, tt.want)
			}
		})
	}
}

func TestResolve_RetiredItem(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 6, 0)

	svc := New(&mockVersionReader{history: map[string][]domain.ContentVersion{
		"gone": {{ItemID: "gone", VersionID: "V1", ValidFrom: t0, ValidTo: &t1}},
	}})

	if _, err := svc.Resolve(context.Background(), "gone", t1.Add(time.Hour)); !errors.Is(err, domain.ErrNoValidVersion) {
		t.Errorf("expected ErrNoValidVersion after retirement, got %v", err)
	}
}

func TestResolve_UnknownItem(t *testing.T) {
	svc := New(&mockVersionReader{history: map[string][]domain.ContentVersion{}})

	if _, err := svc.Resolve(context.Background(), "missing", time.Now()); !errors.Is(err, domain.ErrNoValidVersion) {
		t.Errorf("expected ErrNoValidVersion for empty history, got %v", err)
	}
}

func TestResolve_ReaderError(t *testing.T) {
	wantErr := errors.New("store down")
	svc := New(&mockVersionReader{err: wantErr})

	if _, err := svc.Resolve(context.Background(), "X", time.Now()); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped reader error, got %v", err)
	}
}
