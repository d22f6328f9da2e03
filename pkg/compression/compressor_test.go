package compression

import (
	"bytes"
	"testing"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	original := bytes.Repeat([]byte(`{"text":"a b c","length":3}`), 200)

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
			if err != nil {
				t.Fatalf("Failed to create %s compressor: %v", algo, err)
			}
			if comp.Algorithm() != algo {
				t.Fatalf("expected algorithm %s, got %s", algo, comp.Algorithm())
			}

			compressed, err := comp.Compress(original)
			if err != nil {
				t.Fatalf("Failed to compress: %v", err)
			}
			decompressed, err := comp.Decompress(compressed)
			if err != nil {
				t.Fatalf("Failed to decompress: %v", err)
			}
			if !bytes.Equal(original, decompressed) {
				t.Errorf("Decompressed data doesn't match original")
			}
			if algo != None && len(compressed) >= len(original) {
				t.Errorf("expected %s to shrink repetitive input (%d >= %d)", algo, len(compressed), len(original))
			}
		})
	}
}

func TestLZ4CompressionLevels(t *testing.T) {
	levels := []Level{Fastest, Default, Better, Best}
	testData := bytes.Repeat([]byte("test data for compression "), 100)

	for _, level := range levels {
		t.Run(level.String(), func(t *testing.T) {
			compressor, err := NewCompressor(&Config{Algorithm: LZ4, Level: level})
			if err != nil {
				t.Fatalf("Failed to create compressor: %v", err)
			}

			compressed, err := compressor.Compress(testData)
			if err != nil {
				t.Fatalf("Failed to compress: %v", err)
			}

			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("Failed to decompress: %v", err)
			}

			if !bytes.Equal(testData, decompressed) {
				t.Errorf("Decompressed data doesn't match original for level %v", level)
			}
		})
	}
}

func TestDecompressGarbageFails(t *testing.T) {
	for _, algo := range []Algorithm{Gzip, Snappy, Zstd, S2} {
		comp, err := NewCompressor(&Config{Algorithm: algo})
		if err != nil {
			t.Fatalf("Failed to create %s compressor: %v", algo, err)
		}
		if _, err := comp.Decompress([]byte("definitely not compressed")); err == nil {
			t.Errorf("%s: expected error decoding garbage", algo)
		}
	}
}

func TestTags(t *testing.T) {
	for algo := range tags {
		tag, err := Tag(algo)
		if err != nil {
			t.Fatalf("Tag(%s): %v", algo, err)
		}
		back, err := FromTag(tag)
		if err != nil || back != algo {
			t.Fatalf("FromTag(%d) = %s, %v; want %s", tag, back, err, algo)
		}
	}
	if _, err := FromTag(200); err == nil {
		t.Error("expected error for unknown tag")
	}
	if _, err := ParseAlgorithm("brotli"); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
	if a, err := ParseAlgorithm(" ZSTD "); err != nil || a != Zstd {
		t.Errorf("ParseAlgorithm(ZSTD) = %s, %v", a, err)
	}
}

// Helper method for Level
func (l Level) String() string {
	switch l {
	case Fastest:
		return "Fastest"
	case Default:
		return "Default"
	case Better:
		return "Better"
	case Best:
		return "Best"
	default:
		return "Unknown"
	}
}
