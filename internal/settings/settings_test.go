package settings

import (
	"errors"
	"math"
	"testing"

	"github.com/sweeney/meter-sensor/internal/nvstore"
)

func TestSaveLoad(t *testing.T) {
	r := nvstore.NewMemRegion(64)
	in := Settings{EnergyKWh: 1234.5, ColdWater: 88012, HotWater: 41007}

	if err := Save(r, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if r.Syncs() != 1 {
		t.Errorf("Syncs: got %d, want 1", r.Syncs())
	}

	out, ok, err := Load(r)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("saved record did not validate")
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestLoadErased(t *testing.T) {
	out, ok, err := Load(nvstore.NewMemRegion(RecordSize))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("erased record should not validate")
	}
	if out != (Settings{}) {
		t.Errorf("expected zero settings, got %+v", out)
	}
}

func TestLoadDamaged(t *testing.T) {
	r := nvstore.NewMemRegion(RecordSize)
	Save(r, Settings{ColdWater: 5})
	r.WriteAt([]byte{0xFF}, 9)

	if _, ok, _ := Load(r); ok {
		t.Error("damaged record should not validate")
	}
}

func TestLoadShortRegion(t *testing.T) {
	_, _, err := Load(nvstore.NewMemRegion(RecordSize - 1))
	if !errors.Is(err, nvstore.ErrOutOfRange) {
		t.Errorf("got %v, want ErrOutOfRange", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"zero", Settings{}, false},
		{"typical", Settings{EnergyKWh: 10.5, ColdWater: 1, HotWater: 2}, false},
		{"negative cold", Settings{ColdWater: -1}, true},
		{"negative hot", Settings{HotWater: -1}, true},
		{"negative energy", Settings{EnergyKWh: -0.5}, true},
		{"nan energy", Settings{EnergyKWh: float32(math.NaN())}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate: got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCounterValue(t *testing.T) {
	s := Settings{ColdWater: 12, HotWater: 34}
	tests := []struct {
		name string
		want int64
		ok   bool
	}{
		{"hot", 34, true},
		{"cold", 12, true},
		{"gas", 0, false},
	}
	for _, tt := range tests {
		got, ok := s.CounterValue(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CounterValue(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
