package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		name        string
		descriptor  string
		wantName    string
		wantVariant string
		wantBarcode string
		wantErr     bool
	}{
		{
			name:        "name and barcode",
			descriptor:  "Widget | 4006381333931",
			wantName:    "Widget",
			wantBarcode: "4006381333931",
		},
		{
			name:        "name variant barcode",
			descriptor:  "Widget | Blue XL | 4006381333931",
			wantName:    "Widget",
			wantVariant: "Blue XL",
			wantBarcode: "4006381333931",
		},
		{
			name:        "extra segments join into variant",
			descriptor:  "Widget | Blue | XL | 4006381333931",
			wantName:    "Widget",
			wantVariant: "Blue | XL",
			wantBarcode: "4006381333931",
		},
		{
			name:        "whitespace trimmed",
			descriptor:  "  Widget  |  4006381333931  ",
			wantName:    "Widget",
			wantBarcode: "4006381333931",
		},
		{
			name:       "no pipe is rejected",
			descriptor: "Widget 4006381333931",
			wantErr:    true,
		},
		{
			name:       "empty descriptor",
			descriptor: "   ",
			wantErr:    true,
		},
		{
			name:       "empty barcode segment",
			descriptor: "Widget | ",
			wantErr:    true,
		},
		{
			name:       "empty name segment",
			descriptor: " | 4006381333931",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, variant, barcode, err := ParseDescriptor(tt.descriptor)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantVariant, variant)
			assert.Equal(t, tt.wantBarcode, barcode)
		})
	}
}

func TestNormalizeLines_QtyDefaultsToOne(t *testing.T) {
	lines, err := normalizeLines([]ProductLine{
		{Product: "Widget | 111"},
		{Product: "Gadget | 222", Qty: -3},
		{Product: "Gizmo | 333", Qty: 5},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, 1, lines[0].Qty)
	assert.Equal(t, 1, lines[1].Qty)
	assert.Equal(t, 5, lines[2].Qty)
}

func TestNormalizeLines_RejectsBarcodelessLine(t *testing.T) {
	_, err := normalizeLines([]ProductLine{
		{Product: "Widget | 111", Qty: 1},
		{Product: "no barcode here", Qty: 1},
	})
	require.Error(t, err)
}
