package codec

import (
	"testing"
)

type benchElement struct {
	ID    uint64            `json:"id"`
	Title string            `json:"title"`
	Score float64           `json:"score"`
	Tags  []string          `json:"tags"`
	Attrs map[string]string `json:"attrs"`
}

func benchSection(n int) []benchElement {
	section := make([]benchElement, n)
	for i := range section {
		section[i] = benchElement{
			ID:    uint64(i),
			Title: "element",
			Score: float64(i) * 0.5,
			Tags:  []string{"a", "b", "c"},
			Attrs: map[string]string{"kind": "bench", "lang": "go"},
		}
	}
	return section
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for b.Loop() {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for b.Loop() {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodec_Marshal_Section(b *testing.B) {
	section := benchSection(256)
	for _, c := range []Codec{JSON{}, GoJSON{}, Gob{}} {
		b.Run(c.Name(), func(b *testing.B) {
			benchmarkCodecMarshal(b, c, section)
		})
	}
}

func BenchmarkCodec_Unmarshal_Section(b *testing.B) {
	section := benchSection(256)
	for _, c := range []Codec{JSON{}, GoJSON{}, Gob{}} {
		b.Run(c.Name(), func(b *testing.B) {
			benchmarkCodecUnmarshal[[]benchElement](b, c, MustMarshal(c, section))
		})
	}
}
