package render

import "math"

// Vec3 is a point or direction in 3D
type Vec3 [3]float64

// Vec4 is a homogeneous coordinate
type Vec4 [4]float64

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func (a Vec3) Dot(b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a Vec3) Len() float64 {
	return math.Sqrt(a.Dot(a))
}

// Normalize returns a unit vector, or the zero vector unchanged
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return a
	}
	return Vec3{a[0] / l, a[1] / l, a[2] / l}
}

// Mat4 is a 4x4 matrix in column-major order: element (row r, col c) is
// m[c*4+r]
type Mat4 [16]float64

// Identity returns the identity matrix
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns element (row, col)
func (m Mat4) At(row, col int) float64 {
	return m[col*4+row]
}

// Rotate builds a rotation of angle radians about axis, which need not be
// normalized
func Rotate(axis Vec3, angle float64) Mat4 {
	a := axis.Normalize()
	x, y, z := a[0], a[1], a[2]
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c

	return Mat4{
		t*x*x + c, t*x*y + s*z, t*x*z - s*y, 0,
		t*x*y - s*z, t*y*y + c, t*y*z + s*x, 0,
		t*x*z + s*y, t*y*z - s*x, t*z*z + c, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m * n
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// MulVec returns m * v
func (m Mat4) MulVec(v Vec4) Vec4 {
	var out Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// TransformPoint applies m to a point (w = 1), without the perspective divide
func (m Mat4) TransformPoint(p Vec3) Vec4 {
	return m.MulVec(Vec4{p[0], p[1], p[2], 1})
}

// TransformDir applies m to a direction (w = 0)
func (m Mat4) TransformDir(d Vec3) Vec3 {
	v := m.MulVec(Vec4{d[0], d[1], d[2], 0})
	return Vec3{v[0], v[1], v[2]}
}

// LookAt builds a right-handed view matrix
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)

	return Mat4{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}

// Perspective builds an OpenGL style projection; fovY is in degrees
func Perspective(fovY, aspect, near, far float64) Mat4 {
	f := 1 / math.Tan(fovY*math.Pi/360)
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), -1,
		0, 0, 2 * far * near / (near - far), 0,
	}
}
