// Package mesh holds the triangle-mesh model produced by 3D reconstruction
// and its file codecs (OBJ with per-vertex colors, ASCII PLY, ASCII STL).
package mesh

import (
	"fmt"
	"strings"

	depthcapture "github.com/e7canasta/orion-depth-capture"
)

// Vector is a point in meters, right-handed, Y up.
type Vector struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Cross returns the cross product v x o.
func (v Vector) Cross(o Vector) Vector {
	return Vector{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Color is an 8-bit-per-channel vertex color.
type Color struct {
	R, G, B uint8
}

// Mesh is an indexed triangle mesh with optional per-vertex colors.
// Triangles holds vertex indices in groups of three. Colors is either empty
// or parallel to Vertices.
type Mesh struct {
	Vertices  []Vector
	Colors    []Color
	Triangles []int
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles) / 3
}

// Center returns the mean of all vertices, the zero vector for an empty
// mesh.
func (m *Mesh) Center() Vector {
	if len(m.Vertices) == 0 {
		return Vector{}
	}
	var sum Vector
	for _, v := range m.Vertices {
		sum = sum.Add(v)
	}
	n := float64(len(m.Vertices))
	return Vector{sum.X / n, sum.Y / n, sum.Z / n}
}

// Recenter translates the mesh so its vertex mean sits at the origin.
func (m *Mesh) Recenter() {
	c := m.Center()
	for i := range m.Vertices {
		m.Vertices[i] = m.Vertices[i].Sub(c)
	}
}

// Box builds an axis-aligned box spanning (0,0,0) to (width,height,depth)
// with a uniform vertex tint. 8 vertices, 12 triangles, outward winding.
func Box(width, height, depth float64, tint Color) *Mesh {
	m := &Mesh{
		Vertices: []Vector{
			{0, 0, 0},
			{width, 0, 0},
			{width, height, 0},
			{0, height, 0},
			{0, 0, depth},
			{width, 0, depth},
			{width, height, depth},
			{0, height, depth},
		},
		Triangles: []int{
			0, 2, 1, 0, 3, 2, // back (z=0)
			4, 5, 6, 4, 6, 7, // front (z=depth)
			0, 1, 5, 0, 5, 4, // bottom
			3, 7, 6, 3, 6, 2, // top
			0, 4, 7, 0, 7, 3, // left
			1, 2, 6, 1, 6, 5, // right
		},
	}
	m.Colors = make([]Color, len(m.Vertices))
	for i := range m.Colors {
		m.Colors[i] = tint
	}
	return m
}

// WriteFile encodes the mesh to path in the given format, picking the codec
// by format rather than by file extension.
func (m *Mesh) WriteFile(path string, format depthcapture.FileFormat) error {
	switch format {
	case depthcapture.FormatOBJ:
		return m.WriteOBJ(path)
	case depthcapture.FormatPLY:
		return m.WritePLY(path)
	case depthcapture.FormatSTL:
		return m.WriteSTL(path)
	default:
		return fmt.Errorf("mesh: unsupported file format %d", format)
	}
}

// validate checks index bounds and color parity before encoding.
func (m *Mesh) validate() error {
	if len(m.Triangles)%3 != 0 {
		return fmt.Errorf("mesh: triangle index count %d is not a multiple of 3", len(m.Triangles))
	}
	for _, idx := range m.Triangles {
		if idx < 0 || idx >= len(m.Vertices) {
			return fmt.Errorf("mesh: triangle index %d out of range (%d vertices)", idx, len(m.Vertices))
		}
	}
	if len(m.Colors) != 0 && len(m.Colors) != len(m.Vertices) {
		return fmt.Errorf("mesh: %d colors for %d vertices", len(m.Colors), len(m.Vertices))
	}
	return nil
}

// formatFloat trims a coordinate to a compact decimal form.
func formatFloat(f float64) string {
	s := fmt.Sprintf("%.6f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
