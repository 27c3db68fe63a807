package mesh

import (
	"bufio"
	"fmt"
	"math"
	"os"
)

// WriteSTL writes the mesh as ASCII STL. STL carries no vertex colors;
// facet normals are computed from the winding order.
func (m *Mesh) WriteSTL(path string) error {
	if err := m.validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mesh: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "solid scan")
	for i := 0; i+2 < len(m.Triangles); i += 3 {
		a := m.Vertices[m.Triangles[i]]
		b := m.Vertices[m.Triangles[i+1]]
		c := m.Vertices[m.Triangles[i+2]]
		n := facetNormal(a, b, c)
		fmt.Fprintf(w, "  facet normal %s %s %s\n",
			formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Z))
		fmt.Fprintln(w, "    outer loop")
		for _, v := range []Vector{a, b, c} {
			fmt.Fprintf(w, "      vertex %s %s %s\n",
				formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
		}
		fmt.Fprintln(w, "    endloop")
		fmt.Fprintln(w, "  endfacet")
	}
	fmt.Fprintln(w, "endsolid scan")
	if err := w.Flush(); err != nil {
		return fmt.Errorf("mesh: writing %s: %w", path, err)
	}
	return nil
}

// facetNormal returns the unit normal of triangle (a, b, c), the zero
// vector for degenerate triangles.
func facetNormal(a, b, c Vector) Vector {
	n := b.Sub(a).Cross(c.Sub(a))
	norm := math.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z)
	if norm == 0 {
		return Vector{}
	}
	return Vector{n.X / norm, n.Y / norm, n.Z / norm}
}
