package mesh

import (
	"bufio"
	"fmt"
	"os"
)

// WritePLY writes the mesh as ASCII PLY with per-vertex colors when
// present.
func (m *Mesh) WritePLY(path string) error {
	if err := m.validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mesh: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "ply")
	fmt.Fprintln(w, "format ascii 1.0")
	fmt.Fprintf(w, "element vertex %d\n", len(m.Vertices))
	fmt.Fprintln(w, "property float x")
	fmt.Fprintln(w, "property float y")
	fmt.Fprintln(w, "property float z")
	if len(m.Colors) > 0 {
		fmt.Fprintln(w, "property uchar red")
		fmt.Fprintln(w, "property uchar green")
		fmt.Fprintln(w, "property uchar blue")
	}
	fmt.Fprintf(w, "element face %d\n", m.TriangleCount())
	fmt.Fprintln(w, "property list uchar int vertex_indices")
	fmt.Fprintln(w, "end_header")

	for i, v := range m.Vertices {
		if len(m.Colors) > 0 {
			c := m.Colors[i]
			fmt.Fprintf(w, "%s %s %s %d %d %d\n",
				formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z),
				c.R, c.G, c.B)
		} else {
			fmt.Fprintf(w, "%s %s %s\n",
				formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
		}
	}
	for i := 0; i+2 < len(m.Triangles); i += 3 {
		fmt.Fprintf(w, "3 %d %d %d\n",
			m.Triangles[i], m.Triangles[i+1], m.Triangles[i+2])
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("mesh: writing %s: %w", path, err)
	}
	return nil
}
