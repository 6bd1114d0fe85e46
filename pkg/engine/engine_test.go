package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r3"

	"img2physprop/internal/models"
	"img2physprop/pkg/calibration"
	"img2physprop/pkg/field"
	"img2physprop/pkg/interpolation"
)

// quietLogger discards engine output in tests
func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// createTestVolume builds an n×n×n unit-spacing volume with value i + 2j + 3k
func createTestVolume(t *testing.T, n int) *models.Volume {
	t.Helper()
	data := make([]float64, n*n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				data[(k*n+j)*n+i] = float64(i) + 2*float64(j) + 3*float64(k)
			}
		}
	}
	vol, err := models.NewVolume([3]int{n, n, n}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{}, models.IdentityOrientation(), 1, data)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	return vol
}

// createGridMesh tiles [lo, lo+cells*size]³ with hexahedra
func createGridMesh(t *testing.T, cells int, lo, size float64) *models.Mesh {
	t.Helper()
	n := cells + 1
	nodeID := func(i, j, k int) int { return (k*n+j)*n + i + 1 }

	var nodes []models.Node
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				nodes = append(nodes, models.Node{
					ID:    nodeID(i, j, k),
					Coord: r3.Vec{X: lo + float64(i)*size, Y: lo + float64(j)*size, Z: lo + float64(k)*size},
				})
			}
		}
	}

	var elements []models.Element
	for k := 0; k < cells; k++ {
		for j := 0; j < cells; j++ {
			for i := 0; i < cells; i++ {
				elements = append(elements, models.Element{
					ID: len(elements) + 1,
					NodeIDs: []int{
						nodeID(i, j, k), nodeID(i+1, j, k), nodeID(i+1, j+1, k), nodeID(i, j+1, k),
						nodeID(i, j, k+1), nodeID(i+1, j, k+1), nodeID(i+1, j+1, k+1), nodeID(i, j+1, k+1),
					},
					Type: models.Hex8,
				})
			}
		}
	}

	mesh, err := models.NewMesh(nodes, elements)
	if err != nil {
		t.Fatalf("Failed to create mesh: %v", err)
	}
	return mesh
}

func newEngine(t *testing.T, vol *models.Volume, mesh *models.Mesh, curve calibration.Curve, opts Options) *Engine {
	t.Helper()
	e, err := New(&Params{Volume: vol, Mesh: mesh, Curve: curve, Options: opts, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

// TestSingleVoxelIdentity: a node on the only voxel of a volume gets the
// voxel intensity through an identity calibration.
func TestSingleVoxelIdentity(t *testing.T) {
	vol, err := models.NewVolume([3]int{1, 1, 1}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{}, models.IdentityOrientation(), 1, []float64{500})
	if err != nil {
		t.Fatal(err)
	}
	mesh, err := models.NewMesh([]models.Node{{ID: 1, Coord: r3.Vec{}}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Strategy = interpolation.Node
	// identity over the intensity domain; {(0,0),(1,1)} under clamp would give 1
	e := newEngine(t, vol, mesh, calibration.Identity(0, 1000), opts)

	if e.State() != Configured {
		t.Fatalf("new engine in state %v", e.State())
	}
	f, summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.State() != Completed {
		t.Errorf("state after run = %v", e.State())
	}

	got, ok := f.Scalar(1)
	if !ok || got != 500 {
		t.Errorf("node 1 = %v, want 500", got)
	}
	if summary.OK != 1 || summary.Total != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// TestRotatedAnisotropicVolume samples a field that is linear in physical
// space on a rotated volume with unequal spacing; tri-linear sampling must
// reproduce it exactly at arbitrary nodes.
func TestRotatedAnisotropicVolume(t *testing.T) {
	dims := [3]int{6, 5, 4}
	spacing := r3.Vec{X: 0.5, Y: 1.5, Z: 2}
	origin := r3.Vec{X: 10, Y: -4, Z: 3}
	c, s := math.Cos(0.3), math.Sin(0.3)
	orientation := [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}

	physical := func(idx r3.Vec) r3.Vec {
		x, y, z := idx.X*spacing.X, idx.Y*spacing.Y, idx.Z*spacing.Z
		return r3.Vec{
			X: origin.X + orientation[0][0]*x + orientation[0][1]*y + orientation[0][2]*z,
			Y: origin.Y + orientation[1][0]*x + orientation[1][1]*y + orientation[1][2]*z,
			Z: origin.Z + orientation[2][0]*x + orientation[2][1]*y + orientation[2][2]*z,
		}
	}
	value := func(p r3.Vec) float64 { return p.X + 2*p.Y + 3*p.Z }

	data := make([]float64, dims[0]*dims[1]*dims[2])
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				data[(k*dims[1]+j)*dims[0]+i] = value(physical(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}))
			}
		}
	}
	vol, err := models.NewVolume(dims, spacing, origin, orientation, 1, data)
	if err != nil {
		t.Fatal(err)
	}

	indices := []r3.Vec{{X: 1.3, Y: 2.7, Z: 0.4}, {X: 4.9, Y: 0.2, Z: 2.8}, {X: 2.5, Y: 3.5, Z: 1.5}, {}, {X: 5, Y: 4, Z: 3}}
	nodes := make([]models.Node, len(indices))
	for i, idx := range indices {
		nodes[i] = models.Node{ID: i + 1, Coord: physical(idx)}
	}
	// one step past the last voxel along the first index axis
	nodes = append(nodes, models.Node{ID: 99, Coord: physical(r3.Vec{X: 6.5, Y: 1, Z: 1})})
	mesh, err := models.NewMesh(nodes, nil)
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Strategy = interpolation.Node
	opts.CalibrationEnabled = false
	opts.DefaultValue = -1
	f, summary, err := newEngine(t, vol, mesh, nil, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, n := range nodes[:len(indices)] {
		want := value(n.Coord)
		if got, _ := f.Scalar(n.ID); math.Abs(got-want) > 1e-9 {
			t.Errorf("node %d = %v, want %v", n.ID, got, want)
		}
	}
	if st, _ := f.Status(99); st != field.StatusFallback {
		t.Errorf("node 99 status = %v, want fallback", st)
	}
	if summary.OK != len(indices) || summary.Fallback != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// farElementMesh places element 2 around (1000,1000,1000) next to an
// element inside the volume.
func farElementMesh(t *testing.T) *models.Mesh {
	t.Helper()
	var nodes []models.Node
	var elements []models.Element
	for id, lo := range map[int]float64{1: 2, 2: 999} {
		base := len(nodes) + 1
		hi := lo + 2
		corners := []r3.Vec{
			{X: lo, Y: lo, Z: lo}, {X: hi, Y: lo, Z: lo}, {X: hi, Y: hi, Z: lo}, {X: lo, Y: hi, Z: lo},
			{X: lo, Y: lo, Z: hi}, {X: hi, Y: lo, Z: hi}, {X: hi, Y: hi, Z: hi}, {X: lo, Y: hi, Z: hi},
		}
		ids := make([]int, len(corners))
		for i, c := range corners {
			ids[i] = base + i
			nodes = append(nodes, models.Node{ID: base + i, Coord: c})
		}
		elements = append(elements, models.Element{ID: id, NodeIDs: ids, Type: models.Hex8})
	}
	mesh, err := models.NewMesh(nodes, elements)
	if err != nil {
		t.Fatal(err)
	}
	return mesh
}

// TestFarElementPolicies: an element centred at (1000,1000,1000) fails the
// run under the error policy and gets the default value under clamp_default.
func TestFarElementPolicies(t *testing.T) {
	vol := createTestVolume(t, 10)
	mesh := farElementMesh(t)

	opts := DefaultOptions()
	opts.Strategy = interpolation.Center
	opts.OutOfBounds = interpolation.FailOutOfBounds
	opts.CalibrationEnabled = false

	e := newEngine(t, vol, mesh, nil, opts)
	_, _, err := e.Run(context.Background())
	if !errors.Is(err, models.ErrOutOfBounds) {
		t.Fatalf("expected out-of-bounds error, got %v", err)
	}
	if entity, id, ok := models.EntityOf(err); !ok || entity != models.EntityElement || id != 2 {
		t.Errorf("error does not identify element 2: %v", err)
	}
	if e.State() != Failed {
		t.Errorf("state after failed run = %v", e.State())
	}

	opts.OutOfBounds = interpolation.ClampDefault
	opts.DefaultValue = 0
	f, summary, err := newEngine(t, vol, mesh, nil, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run with clamp_default: %v", err)
	}
	if v, _ := f.Scalar(2); v != 0 {
		t.Errorf("element 2 = %v, want 0", v)
	}
	if st, _ := f.Status(2); st != field.StatusFallback {
		t.Errorf("element 2 status = %v, want fallback", st)
	}
	if summary.Fallback != 1 || summary.OK != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// TestSubVoxelElementMatchesCenter: an element smaller than a voxel falls
// back to its centroid under all_voxel with the center strategy's value.
func TestSubVoxelElementMatchesCenter(t *testing.T) {
	vol := createTestVolume(t, 6)
	mesh := createGridMesh(t, 1, 2.3, 0.4)
	curve := calibration.Curve{{Intensity: 0, Property: 0.5}, {Intensity: 40, Property: 2.5}}

	opts := DefaultOptions()
	opts.Strategy = interpolation.AllVoxel
	all, _, err := newEngine(t, vol, mesh, curve, opts).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	opts.Strategy = interpolation.Center
	center, _, err := newEngine(t, vol, mesh, curve, opts).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if st, _ := all.Status(1); st != field.StatusFallbackToCentroid {
		t.Errorf("status = %v, want fallback_to_centroid", st)
	}
	a, _ := all.Scalar(1)
	c, _ := center.Scalar(1)
	if a != c {
		t.Errorf("all_voxel fallback %v != center %v", a, c)
	}
}

func TestFailFastAndCollectAll(t *testing.T) {
	vol := createTestVolume(t, 4)
	// Nodes run from -1 to 5, so the outer layer lies outside [0,3]
	mesh := createGridMesh(t, 3, -1, 2)

	opts := DefaultOptions()
	opts.Strategy = interpolation.Node
	opts.OutOfBounds = interpolation.FailOutOfBounds
	opts.CalibrationEnabled = false
	opts.BatchSize = 4
	opts.NumWorkers = 3

	opts.FailFast = true
	_, _, err := newEngine(t, vol, mesh, nil, opts).Run(context.Background())
	if !models.IsKind(err, models.KindOutOfBounds) {
		t.Fatalf("fail-fast run: expected out-of-bounds error, got %v", err)
	}

	opts.FailFast = false
	_, _, err = newEngine(t, vol, mesh, nil, opts).Run(context.Background())
	if err == nil {
		t.Fatal("expected collected errors")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("error is not a joined error: %T", err)
	}
	// 64 nodes, of which only the 8 at coordinates {1,3}³ are inside
	if n := len(joined.Unwrap()); n != 56 {
		t.Errorf("collected %d errors, want 56", n)
	}
}

func TestRunOnlyOnce(t *testing.T) {
	vol := createTestVolume(t, 4)
	mesh := createGridMesh(t, 1, 1, 1)
	opts := DefaultOptions()
	opts.CalibrationEnabled = false

	e := newEngine(t, vol, mesh, nil, opts)
	if _, _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run: got %v, want ErrAlreadyRun", err)
	}
	if e.State() != Completed {
		t.Errorf("state changed by second Run: %v", e.State())
	}
}

func TestCancelledContext(t *testing.T) {
	vol := createTestVolume(t, 8)
	mesh := createGridMesh(t, 4, 1, 1)
	opts := DefaultOptions()
	opts.CalibrationEnabled = false
	opts.BatchSize = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(t, vol, mesh, nil, opts)
	if _, _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.State() != Failed {
		t.Errorf("state = %v, want failed", e.State())
	}
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	vol := createTestVolume(t, 8)
	mesh := createGridMesh(t, 3, 0.5, 2)
	curve := calibration.Curve{{Intensity: 0, Property: 1}, {Intensity: 60, Property: 4}}

	var fields []*field.PropertyField
	for _, workers := range []int{1, 4} {
		opts := DefaultOptions()
		opts.Strategy = interpolation.AllVoxel
		opts.NumWorkers = workers
		opts.BatchSize = 2
		f, _, err := newEngine(t, vol, mesh, curve, opts).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		fields = append(fields, f)
	}

	for _, id := range fields[0].IDs() {
		a, _ := fields[0].Scalar(id)
		b, _ := fields[1].Scalar(id)
		if a != b {
			t.Errorf("element %d: %v with 1 worker, %v with 4", id, a, b)
		}
	}
}

func TestOutputGranularity(t *testing.T) {
	vol := createTestVolume(t, 8)
	mesh := createGridMesh(t, 2, 1, 2)

	opts := DefaultOptions()
	opts.CalibrationEnabled = false

	opts.Strategy = interpolation.Node
	opts.OutputGranularity = OutputElement
	elems, _, err := newEngine(t, vol, mesh, nil, opts).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if elems.Granularity() != field.Element || elems.Len() != len(mesh.Elements) {
		t.Fatalf("got %s field with %d entities", elems.Granularity(), elems.Len())
	}
	// Mean of a linear field over the corners of a box is its centre value
	e := mesh.Elements[0]
	c := mesh.Centroid(e)
	want := c.X + 2*c.Y + 3*c.Z
	if got, _ := elems.Scalar(e.ID); math.Abs(got-want) > 1e-9 {
		t.Errorf("element %d = %v, want %v", e.ID, got, want)
	}

	opts.Strategy = interpolation.Center
	opts.OutputGranularity = OutputNode
	nodes, _, err := newEngine(t, vol, mesh, nil, opts).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if nodes.Granularity() != field.Node || nodes.Len() != len(mesh.Nodes) {
		t.Errorf("got %s field with %d entities", nodes.Granularity(), nodes.Len())
	}
}

func TestProgressCallback(t *testing.T) {
	vol := createTestVolume(t, 6)
	mesh := createGridMesh(t, 2, 1, 1)
	opts := DefaultOptions()
	opts.CalibrationEnabled = false
	opts.BatchSize = 5

	var calls, last int
	params := &Params{
		Volume:  vol,
		Mesh:    mesh,
		Options: opts,
		Logger:  quietLogger(),
		Progress: func(completed, total int, message string) {
			calls++
			last = completed
			if total != len(mesh.Nodes) {
				t.Errorf("total = %d, want %d", total, len(mesh.Nodes))
			}
		},
	}
	e, err := New(params)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// 27 nodes in batches of 5
	if calls != 6 || last != 27 {
		t.Errorf("progress called %d times ending at %d", calls, last)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	vol := createTestVolume(t, 4)
	mesh := createGridMesh(t, 1, 1, 1)

	opts := DefaultOptions()
	if _, err := New(&Params{Volume: vol, Mesh: mesh, Options: opts}); !errors.Is(err, models.ErrInvalidCalibration) {
		t.Errorf("missing curve: got %v", err)
	}

	opts.CalibrationEnabled = false
	opts.NumWorkers = 0
	if _, err := New(&Params{Volume: vol, Mesh: mesh, Options: opts}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("zero workers: got %v", err)
	}

	if _, err := New(&Params{Mesh: mesh, Options: DefaultOptions()}); err == nil {
		t.Errorf("expected missing volume to fail")
	}
}
