package harvest

import (
	"context"
	"reflect"
	"testing"

	"github.com/SteelMorgan/rs2-log-harvester/internal/bookmark"
	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/SteelMorgan/rs2-log-harvester/internal/testsupport"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genGrowth generates per-poll line growth for an append-only file
func genGrowth() gopter.Gen {
	return gen.SliceOfN(6, gen.IntRange(0, 12))
}

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	id := domain.NewLogIdentity("Launch.log", headerTime)

	properties.Property("offset is monotonic and the tail line is never delivered", prop.ForAll(
		func(growth []int) bool {
			ctx := context.Background()
			store := bookmark.NewMemoryStore()
			tracker := NewTracker()
			fake := testsupport.NewFakeSession()
			r := NewResolver(NewFetcher(fake), tracker, store)

			size := 1
			prev := 0
			for _, g := range growth {
				size += g
				fake.PutLog("Launch.log", logLines(size)...)

				got, err := r.Resolve(ctx, "Launch.log")
				if err != nil {
					return false
				}
				off, _ := store.Get(id)
				if off < prev || off > size-1 {
					return false
				}
				for _, line := range got {
					if line == logLines(size)[size-1] {
						return false
					}
				}
				prev = off
			}
			return true
		},
		genGrowth(),
	))

	properties.Property("delivered lines concatenate to the file minus its tail", prop.ForAll(
		func(growth []int) bool {
			ctx := context.Background()
			store := bookmark.NewMemoryStore()
			fake := testsupport.NewFakeSession()
			r := NewResolver(NewFetcher(fake), NewTracker(), store)

			size := 1
			var delivered []string
			for _, g := range growth {
				size += g
				fake.PutLog("Launch.log", logLines(size)...)
				got, err := r.Resolve(ctx, "Launch.log")
				if err != nil {
					return false
				}
				delivered = append(delivered, got...)
			}

			want := logLines(size)[:size-1]
			if len(want) == 0 {
				return len(delivered) == 0
			}
			return reflect.DeepEqual(delivered, want)
		},
		genGrowth(),
	))

	properties.Property("polling an unchanged file twice yields nothing the second time", prop.ForAll(
		func(size int) bool {
			ctx := context.Background()
			fake := testsupport.NewFakeSession()
			r := NewResolver(NewFetcher(fake), NewTracker(), bookmark.NewMemoryStore())

			fake.PutLog("Launch.log", logLines(size)...)
			if _, err := r.Resolve(ctx, "Launch.log"); err != nil {
				return false
			}
			got, err := r.Resolve(ctx, "Launch.log")
			return err == nil && len(got) == 0
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
