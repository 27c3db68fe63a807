package mesh

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	depthcapture "github.com/e7canasta/orion-depth-capture"
)

// TestBoxGeometry validates the generated box primitive.
func TestBoxGeometry(t *testing.T) {
	m := Box(2, 1, 0.5, Color{R: 10, G: 20, B: 30})

	if len(m.Vertices) != 8 {
		t.Errorf("box has %d vertices, want 8", len(m.Vertices))
	}
	if m.TriangleCount() != 12 {
		t.Errorf("box has %d triangles, want 12", m.TriangleCount())
	}
	if len(m.Colors) != len(m.Vertices) {
		t.Errorf("box has %d colors for %d vertices", len(m.Colors), len(m.Vertices))
	}
	if err := m.validate(); err != nil {
		t.Errorf("generated box invalid: %v", err)
	}

	// Spans (0,0,0)..(w,h,d): the vertex mean sits at the half extents.
	c := m.Center()
	if c.X != 1 || c.Y != 0.5 || c.Z != 0.25 {
		t.Errorf("box center = %+v, want (1, 0.5, 0.25)", c)
	}
}

// TestRecenter validates translation to the vertex mean.
func TestRecenter(t *testing.T) {
	m := Box(2, 2, 2, Color{})
	m.Recenter()

	c := m.Center()
	if math.Abs(c.X) > 1e-9 || math.Abs(c.Y) > 1e-9 || math.Abs(c.Z) > 1e-9 {
		t.Errorf("center after Recenter = %+v, want origin", c)
	}
	// Extents preserved: corners now at ±1.
	if m.Vertices[0].X != -1 || m.Vertices[6].X != 1 {
		t.Errorf("recentered corners = %+v / %+v, want ±1 extents", m.Vertices[0], m.Vertices[6])
	}
}

// TestOBJRoundtrip validates write-then-load fidelity.
//
// Scenario:
//  1. Write a colored box as OBJ
//  2. Load it back
//  3. Assert: same topology, colors survive the [0,1] roundtrip, vertices
//     recentered about the mean (LoadOBJ recenters)
func TestOBJRoundtrip(t *testing.T) {
	tint := Color{R: 128, G: 64, B: 255}
	src := Box(2, 1, 0.5, tint)

	path := filepath.Join(t.TempDir(), "box.obj")
	if err := src.WriteOBJ(path); err != nil {
		t.Fatalf("WriteOBJ() failed: %v", err)
	}

	got, err := LoadOBJ(path)
	if err != nil {
		t.Fatalf("LoadOBJ() failed: %v", err)
	}

	if len(got.Vertices) != len(src.Vertices) {
		t.Fatalf("loaded %d vertices, want %d", len(got.Vertices), len(src.Vertices))
	}
	if len(got.Triangles) != len(src.Triangles) {
		t.Fatalf("loaded %d triangle indices, want %d", len(got.Triangles), len(src.Triangles))
	}
	for i := range src.Triangles {
		if got.Triangles[i] != src.Triangles[i] {
			t.Fatalf("triangle index %d = %d, want %d", i, got.Triangles[i], src.Triangles[i])
		}
	}
	for i, c := range got.Colors {
		if int(c.R)-int(tint.R) > 1 || int(tint.R)-int(c.R) > 1 {
			t.Errorf("vertex %d color R = %d, want ~%d", i, c.R, tint.R)
		}
	}

	// LoadOBJ recenters: the loaded mesh's mean is the origin even though
	// the source box was corner-anchored.
	c := got.Center()
	if math.Abs(c.X) > 1e-6 || math.Abs(c.Y) > 1e-6 || math.Abs(c.Z) > 1e-6 {
		t.Errorf("loaded mesh center = %+v, want origin", c)
	}
}

// TestLoadOBJFaceDialects validates the accepted face index forms.
func TestLoadOBJFaceDialects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialects.obj")
	content := strings.Join([]string{
		"# comment",
		"v 0 0 0",
		"v 1 0 0",
		"v 0 1 0",
		"vn 0 0 1",
		"f 1 2 3",
		"f 1//1 2//2 3//3",
		"f 1/1/1 2/2/2 3/3/3",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadOBJ(path)
	if err != nil {
		t.Fatalf("LoadOBJ() failed: %v", err)
	}
	if len(m.Vertices) != 3 || m.TriangleCount() != 3 {
		t.Errorf("loaded %d vertices / %d triangles, want 3 / 3", len(m.Vertices), m.TriangleCount())
	}
	if m.Colors != nil {
		t.Error("colorless OBJ produced vertex colors")
	}
	for _, idx := range m.Triangles {
		if idx < 0 || idx > 2 {
			t.Errorf("face index %d out of range after 1-based conversion", idx)
		}
	}
}

// TestLoadOBJRejectsBadInput validates parse errors.
func TestLoadOBJRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"index out of range": "v 0 0 0\nf 1 2 3\n",
		"non-triangular":     "v 0 0 0\nv 1 0 0\nv 0 1 0\nv 1 1 0\nf 1 2 3 4\n",
		"short vertex":       "v 0 0\n",
		"bad coordinate":     "v zero 0 0\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "bad.obj")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadOBJ(path); err == nil {
			t.Errorf("%s: LoadOBJ() succeeded, want error", name)
		}
	}
}

// TestWriteFileFormats validates format dispatch and the encoders' framing
// lines (header magic, facet count).
func TestWriteFileFormats(t *testing.T) {
	m := Box(1, 1, 1, Color{R: 1, G: 2, B: 3})
	dir := t.TempDir()

	ply := filepath.Join(dir, "box.ply")
	if err := m.WriteFile(ply, depthcapture.FormatPLY); err != nil {
		t.Fatalf("WriteFile(ply) failed: %v", err)
	}
	if first := firstLine(t, ply); first != "ply" {
		t.Errorf("PLY header = %q, want \"ply\"", first)
	}

	stl := filepath.Join(dir, "box.stl")
	if err := m.WriteFile(stl, depthcapture.FormatSTL); err != nil {
		t.Fatalf("WriteFile(stl) failed: %v", err)
	}
	if first := firstLine(t, stl); !strings.HasPrefix(first, "solid") {
		t.Errorf("STL header = %q, want a solid line", first)
	}

	if err := m.WriteFile(filepath.Join(dir, "box.bad"), depthcapture.FileFormat(99)); err == nil {
		t.Error("WriteFile(unknown format) succeeded")
	}
}

// TestFacetNormal validates normal orientation and the degenerate case.
func TestFacetNormal(t *testing.T) {
	n := facetNormal(Vector{0, 0, 0}, Vector{1, 0, 0}, Vector{0, 1, 0})
	if n.Z != 1 || n.X != 0 || n.Y != 0 {
		t.Errorf("facetNormal(ccw in xy) = %+v, want +Z", n)
	}

	z := facetNormal(Vector{0, 0, 0}, Vector{1, 1, 1}, Vector{2, 2, 2})
	if z != (Vector{}) {
		t.Errorf("facetNormal(degenerate) = %+v, want zero", z)
	}
}

func firstLine(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	if !s.Scan() {
		t.Fatalf("%s is empty", path)
	}
	return s.Text()
}
