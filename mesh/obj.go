package mesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WriteOBJ writes the mesh as Wavefront OBJ. Vertex colors, when present,
// ride on the v lines ("v x y z r g b"), the de-facto extension most mesh
// viewers accept. Faces use the "f a//a b//b c//c" form with 1-based
// indices.
func (m *Mesh) WriteOBJ(path string) error {
	if err := m.validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mesh: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, v := range m.Vertices {
		if len(m.Colors) > 0 {
			c := m.Colors[i]
			fmt.Fprintf(w, "v %s %s %s %s %s %s\n",
				formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z),
				formatFloat(float64(c.R)/255.0),
				formatFloat(float64(c.G)/255.0),
				formatFloat(float64(c.B)/255.0))
		} else {
			fmt.Fprintf(w, "v %s %s %s\n",
				formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
		}
	}
	for i := 0; i+2 < len(m.Triangles); i += 3 {
		a, b, c := m.Triangles[i]+1, m.Triangles[i+1]+1, m.Triangles[i+2]+1
		fmt.Fprintf(w, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("mesh: writing %s: %w", path, err)
	}
	return nil
}

// LoadOBJ parses a Wavefront OBJ file into a mesh, accepting the same
// dialect WriteOBJ emits: "v x y z [r g b]" vertices and triangular faces
// whose index groups may carry texture/normal references ("f 1//1 2//2
// 3//3"). All other statements are skipped. The loaded mesh is recentered
// about its vertex mean.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mesh: opening %s: %w", path, err)
	}
	defer f.Close()

	m := &Mesh{}
	hasColors := false

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh: %s:%d: vertex with %d coordinates", path, line, len(fields)-1)
			}
			var v Vector
			if v.X, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("mesh: %s:%d: %w", path, line, err)
			}
			if v.Y, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, fmt.Errorf("mesh: %s:%d: %w", path, line, err)
			}
			if v.Z, err = strconv.ParseFloat(fields[3], 64); err != nil {
				return nil, fmt.Errorf("mesh: %s:%d: %w", path, line, err)
			}
			m.Vertices = append(m.Vertices, v)

			if len(fields) >= 7 {
				c, err := parseVertexColor(fields[4:7])
				if err != nil {
					return nil, fmt.Errorf("mesh: %s:%d: %w", path, line, err)
				}
				m.Colors = append(m.Colors, c)
				hasColors = true
			} else {
				m.Colors = append(m.Colors, Color{})
			}
		case "f":
			if len(fields) != 4 {
				return nil, fmt.Errorf("mesh: %s:%d: only triangular faces are supported (%d vertices)", path, line, len(fields)-1)
			}
			for _, ref := range fields[1:] {
				idx, err := parseFaceIndex(ref)
				if err != nil {
					return nil, fmt.Errorf("mesh: %s:%d: %w", path, line, err)
				}
				if idx < 1 || idx > len(m.Vertices) {
					return nil, fmt.Errorf("mesh: %s:%d: face index %d out of range", path, line, idx)
				}
				m.Triangles = append(m.Triangles, idx-1)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mesh: reading %s: %w", path, err)
	}

	if !hasColors {
		m.Colors = nil
	}
	m.Recenter()
	return m, nil
}

// parseFaceIndex extracts the vertex index from an OBJ face reference
// ("7", "7/3", "7//7", "7/3/7" all yield 7).
func parseFaceIndex(ref string) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	idx, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q: %w", ref, err)
	}
	return idx, nil
}

// parseVertexColor parses the three trailing color fields of a "v" line,
// given in [0,1].
func parseVertexColor(fields []string) (Color, error) {
	var ch [3]float64
	for i, s := range fields {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Color{}, fmt.Errorf("bad vertex color %q: %w", s, err)
		}
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		ch[i] = f
	}
	return Color{
		R: uint8(ch[0]*255 + 0.5),
		G: uint8(ch[1]*255 + 0.5),
		B: uint8(ch[2]*255 + 0.5),
	}, nil
}
