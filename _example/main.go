package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/segvec"
	"github.com/hupe1980/segvec/blobstore"
	"github.com/hupe1980/segvec/codec"
	"github.com/hupe1980/segvec/resource"
)

type reading struct {
	Sensor    string  `json:"sensor"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"ts"`
}

func main() {
	size := 500000

	ctl := resource.NewController(resource.Config{
		MemoryLimitBytes:   256 << 20,
		IOLimitBytesPerSec: 64 << 20,
	})

	v := segvec.New[reading](
		segvec.WithSegmentCapacity(1024),
		segvec.WithResourceController(ctl),
		segvec.WithCodec(codec.GoJSON{}),
		segvec.WithLogLevel(slog.LevelInfo),
	)
	defer v.Close()

	fmt.Println("--- Push ---")
	fmt.Println("Size:", size)

	start := time.Now()

	// Hold a pointer to the first element across half a million pushes.
	first := v.PushRef(reading{Sensor: "s-0", Value: 0, Timestamp: time.Now().UnixNano()})
	for i := 1; i < size; i++ {
		v.Push(reading{
			Sensor:    fmt.Sprintf("s-%d", i%16),
			Value:     float64(i) * 0.5,
			Timestamp: time.Now().UnixNano(),
		})
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	first.Value = -1 // still the live slot of element 0

	st := v.Stats()
	fmt.Println("--- Stats ---")
	fmt.Println("Len:", st.Len)
	fmt.Println("Cap:", st.Cap)
	fmt.Println("Segments:", st.Segments)
	fmt.Printf("Reserved: %.1f MiB\n\n", float64(st.BytesReserved)/(1<<20))

	var sum float64
	for _, r := range v.All() {
		sum += r.Value
	}
	fmt.Printf("Sum of values: %.1f\n\n", sum)

	ctx := context.Background()
	store := blobstore.NewLocalStore("./segvec-data")
	defer os.RemoveAll("./segvec-data")

	fmt.Println("--- Snapshot ---")
	start = time.Now()

	if err := v.SaveToStore(ctx, store, "readings.segvec", func(o *segvec.SnapshotOptions) {
		o.Compression = segvec.CompressionZstd
	}); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Save seconds: %.2f\n", time.Since(start).Seconds())

	start = time.Now()
	loaded, err := segvec.LoadFromStore[reading](ctx, store, "readings.segvec")
	if err != nil {
		log.Fatal(err)
	}
	defer loaded.Close()

	fmt.Printf("Load seconds: %.2f\n", time.Since(start).Seconds())
	fmt.Println("Loaded len:", loaded.Len())

	got, _ := loaded.Get(0)
	fmt.Println("Element 0 value after round trip:", got.Value)
}
