package main

import "testing"

// TestClipPolygonCutsCornerAtExactPlaneBoundary covers scenario F and
// invariant 7: a triangle with one vertex beyond the w>=x clip plane is
// cut into a quad whose two new vertices land exactly on the plane
// (x == w) and whose surviving original vertices are untouched.
func TestClipPolygonCutsCornerAtExactPlaneBoundary(t *testing.T) {
	const w = 4096 // 1.0 in s19.12

	a := vertex3D{pos: [4]int64{0, 0, 0, w}}
	b := vertex3D{pos: [4]int64{-2048, 0, 0, w}}
	c := vertex3D{pos: [4]int64{8192, 0, 0, w}} // x > w: outside the w-x>=0 plane

	clipped := clipPolygon([]vertex3D{a, b, c})

	if len(clipped) != 4 {
		t.Fatalf("clipped vertex count = %d, want 4 (triangle corner cut into a quad)", len(clipped))
	}

	for i, v := range clipped {
		if v.pos[3]-v.pos[0] < 0 {
			t.Fatalf("clipped[%d] has x=%d > w=%d, violates the w-x>=0 clip plane", i, v.pos[0], v.pos[3])
		}
	}

	requireI64Equal(t, "clipped[0].x (new vertex on plane)", clipped[0].pos[0], w)
	requireI64Equal(t, "clipped[0].w", clipped[0].pos[3], w)
	requireI64Equal(t, "clipped[3].x (new vertex on plane)", clipped[3].pos[0], w)
	requireI64Equal(t, "clipped[3].w", clipped[3].pos[3], w)

	if clipped[1] != a {
		t.Fatalf("clipped[1] = %+v, want the untouched original vertex A %+v", clipped[1], a)
	}
	if clipped[2] != b {
		t.Fatalf("clipped[2] = %+v, want the untouched original vertex B %+v", clipped[2], b)
	}
}

// TestClipPolygonDropsFullyOutsidePolygon covers the degenerate edge
// case of invariant 7: a triangle entirely beyond one clip plane
// produces no output vertices at all.
func TestClipPolygonDropsFullyOutsidePolygon(t *testing.T) {
	const w = 4096
	verts := []vertex3D{
		{pos: [4]int64{2 * w, 0, 0, w}},
		{pos: [4]int64{3 * w, 0, 0, w}},
		{pos: [4]int64{4 * w, 0, 0, w}},
	}
	clipped := clipPolygon(verts)
	if len(clipped) != 0 {
		t.Fatalf("clipped vertex count = %d, want 0 for a fully out-of-bounds triangle", len(clipped))
	}
}

func requireI64Equal(t testingT, name string, got, want int64) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %d, want %d", name, got, want)
	}
}
