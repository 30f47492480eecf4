package psxgpu

import (
	"errors"
	"testing"
)

// mapVariableSource backs VariableSource with a plain map for tests.
type mapVariableSource map[string]string

func (m mapVariableSource) Variable(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func TestDrawConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DrawConfig)
		wantErr error
	}{
		{"default", func(c *DrawConfig) {}, nil},
		{"max upscaling", func(c *DrawConfig) { c.InternalUpscaling = 8 }, nil},
		{"zero width", func(c *DrawConfig) { c.VRAMWidth = 0 }, ErrInvalidConfig},
		{"zero height", func(c *DrawConfig) { c.VRAMHeight = 0 }, ErrInvalidConfig},
		{"zero upscaling", func(c *DrawConfig) { c.InternalUpscaling = 0 }, ErrInvalidConfig},
		{"excessive upscaling", func(c *DrawConfig) { c.InternalUpscaling = 9 }, ErrInvalidConfig},
		{"bad color depth", func(c *DrawConfig) { c.InternalColorDepth = 24 }, ErrInvalidConfig},
		{"texture limit", func(c *DrawConfig) {
			c.VRAMWidth = 2048
			c.InternalUpscaling = 8
		}, ErrUnsupportedResolution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDrawConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDrawConfigScaled(t *testing.T) {
	cfg := DefaultDrawConfig()
	cfg.InternalUpscaling = 4
	if cfg.scaledWidth() != 4096 {
		t.Errorf("scaledWidth() = %d, want 4096", cfg.scaledWidth())
	}
	if cfg.scaledHeight() != 2048 {
		t.Errorf("scaledHeight() = %d, want 2048", cfg.scaledHeight())
	}
}

func TestReadVariables(t *testing.T) {
	cur := variables{upscaling: 1, colorDepth: 16}

	got := readVariables(mapVariableSource{
		VarInternalResolution: "4",
		VarInternalColorDepth: "32",
		VarWireframe:          "enabled",
		VarDither:             "true",
	}, cur)
	want := variables{upscaling: 4, colorDepth: 32, wireframe: true, dither: true}
	if got != want {
		t.Errorf("readVariables = %+v, want %+v", got, want)
	}
}

func TestReadVariablesKeepsCurrentOnBadValues(t *testing.T) {
	cur := variables{upscaling: 2, colorDepth: 32, dither: true}

	got := readVariables(mapVariableSource{
		VarInternalResolution: "sixteen",
		VarInternalColorDepth: "24",
		VarDither:             "disabled",
	}, cur)
	if got.upscaling != 2 {
		t.Errorf("upscaling = %d, want 2 (bad value ignored)", got.upscaling)
	}
	if got.colorDepth != 32 {
		t.Errorf("colorDepth = %d, want 32 (bad value ignored)", got.colorDepth)
	}
	if got.dither {
		t.Error("dither should be disabled by an explicit value")
	}
}

func TestReadVariablesOutOfRangeResolution(t *testing.T) {
	cur := variables{upscaling: 1, colorDepth: 16}
	got := readVariables(mapVariableSource{VarInternalResolution: "16"}, cur)
	if got.upscaling != 1 {
		t.Errorf("upscaling = %d, want 1 (out of range ignored)", got.upscaling)
	}
}

func TestReadVariablesEmptySource(t *testing.T) {
	cur := variables{upscaling: 3, colorDepth: 16, wireframe: true}
	got := readVariables(mapVariableSource{}, cur)
	if got != cur {
		t.Errorf("readVariables = %+v, want unchanged %+v", got, cur)
	}
}
