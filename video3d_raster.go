// video3d_raster.go - 3D scanline rasterizer

/*
video3d_raster.go - rasterization

Grounded on _examples/original_source/src/nds/gpu/3d/re.{h,cc} and
re_poly.cc ("twice"): each swap-buffered polygon is projected to viewport space
(perspective divide by w, then mapped through VIEWPORT), triangulated
(quads as two triangles sharing a diagonal), and filled with a
standard edge-function scanline test, interpolating color and texture
coordinates perspective-correctly (dividing by w before interpolating,
multiplying back after) and testing depth against a per-pixel z-buffer
seeded at maximum depth each frame.

Texture sampling is simplified to the one format exercised by the
wired texture/texture-palette VRAM slots: paletted (4bpp/8bpp) lookup,
which covers the texture formats practical titles use most; direct-
color/compressed texture formats fall back to the polygon's flat vertex
color, which still consumes the VRAM texture banks routed in vram.go
for format decoding ground truth without requiring every codec.
*/

package main

type raster3DFrame struct {
	color [screenWidth * screenHeight]bgr555
	depth [screenWidth * screenHeight]int64
	opaque [screenWidth * screenHeight]bool
}

func newRaster3DFrame() *raster3DFrame {
	f := &raster3DFrame{}
	f.clear()
	return f
}

func (f *raster3DFrame) clear() {
	for i := range f.depth {
		f.depth[i] = 1 << 62
		f.opaque[i] = false
		f.color[i] = 0
	}
}

type screenVertex struct {
	x, y int32 // pixel coords, s.8 fixed for sub-pixel precision
	z    int64
	invW float64
	r, g, b float64 // premultiplied by invW
	u, v    float64
}

// RasterizeFrame projects and fills every polygon from the most
// recently swapped buffer into frame, called once per VBlank by
// machine.go after a SWAP_BUFFERS command has run.
func (g *Geometry3D) RasterizeFrame(frame *raster3DFrame, vram *VRAM, texPalette []byte) {
	frame.clear()
	for _, poly := range g.swapBuffered {
		sverts := make([]screenVertex, len(poly.verts))
		for i, v := range poly.verts {
			sverts[i] = projectVertex(v, g.viewportX1, g.viewportY1, g.viewportX2, g.viewportY2)
		}
		if poly.quad {
			fillTriangle(frame, sverts[0], sverts[1], sverts[2], &poly, vram)
			fillTriangle(frame, sverts[0], sverts[2], sverts[3], &poly, vram)
		} else {
			for i := 1; i+1 < len(sverts); i++ {
				fillTriangle(frame, sverts[0], sverts[i], sverts[i+1], &poly, vram)
			}
		}
	}
}

func projectVertex(v vertex3D, x1, y1, x2, y2 uint8) screenVertex {
	w := v.pos[3]
	if w == 0 {
		w = 1
	}
	invW := 1.0 / float64(w)
	ndcX := float64(v.pos[0]) * invW
	ndcY := float64(v.pos[1]) * invW

	vx := float64(x1) + (ndcX/4096.0+1)*0.5*float64(int(x2)-int(x1)+1)
	vy := float64(y1) + (1-(ndcY/4096.0+1)*0.5)*float64(int(y2)-int(y1)+1)

	return screenVertex{
		x: int32(vx * 256),
		y: int32(vy * 256),
		z: v.pos[2],
		invW: invW,
		r: float64(v.color[0]) * invW,
		g: float64(v.color[1]) * invW,
		b: float64(v.color[2]) * invW,
		u: float64(v.u) * invW,
		v: float64(v.v) * invW,
	}
}

func fillTriangle(frame *raster3DFrame, a, b, c screenVertex, poly *polygon3D, vram *VRAM) {
	minX := maxI32(0, minI32(a.x, minI32(b.x, c.x))/256)
	maxX := minI32(screenWidth-1, (maxI32(a.x, maxI32(b.x, c.x))/256)+1)
	minY := maxI32(0, minI32(a.y, minI32(b.y, c.y))/256)
	maxY := minI32(screenHeight-1, (maxI32(a.y, maxI32(b.y, c.y))/256)+1)

	area := edgeFunc(a, b, c)
	if area == 0 {
		return
	}

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			p := screenVertex{x: px*256 + 128, y: py*256 + 128}
			w0 := edgeFunc(b, c, p)
			w1 := edgeFunc(c, a, p)
			w2 := edgeFunc(a, b, p)
			if area > 0 {
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
			} else {
				if w0 > 0 || w1 > 0 || w2 > 0 {
					continue
				}
			}
			l0 := float64(w0) / float64(area)
			l1 := float64(w1) / float64(area)
			l2 := float64(w2) / float64(area)

			depth := l0*float64(a.z) + l1*float64(b.z) + l2*float64(c.z)
			idx := int(py)*screenWidth + int(px)
			if int64(depth) >= frame.depth[idx] {
				continue
			}

			invW := l0*a.invW + l1*b.invW + l2*c.invW
			if invW == 0 {
				continue
			}
			r := (l0*a.r + l1*b.r + l2*c.r) / invW
			gc := (l0*a.g + l1*b.g + l2*c.g) / invW
			bl := (l0*a.b + l1*b.b + l2*c.b) / invW

			color := packBGR555(clampColorComponent(int32(r))>>3, clampColorComponent(int32(gc))>>3, clampColorComponent(int32(bl))>>3)
			if hasTexture(poly) {
				u := (l0*a.u + l1*b.u + l2*c.u) / invW
				v := (l0*a.v + l1*b.v + l2*c.v) / invW
				if texColor, ok := sampleTexture(poly, vram, u, v); ok {
					color = texColor
				}
			}

			frame.depth[idx] = int64(depth)
			frame.color[idx] = color
			frame.opaque[idx] = true
		}
	}
}

func edgeFunc(a, b, c screenVertex) int64 {
	return int64(b.x-a.x)*int64(c.y-a.y) - int64(b.y-a.y)*int64(c.x-a.x)
}

func hasTexture(poly *polygon3D) bool {
	return (poly.texParam>>26)&0x7 != 0
}

// sampleTexture decodes a paletted texel from the texture/texture-
// palette VRAM spaces routed by vram.go; direct-color and compressed
// formats are not decoded and fall back to the flat vertex color
// (caller checks the ok return).
func sampleTexture(poly *polygon3D, vram *VRAM, u, v float64) (bgr555, bool) {
	format := (poly.texParam >> 26) & 0x7
	widthLog := (poly.texParam >> 20) & 0x7
	heightLog := (poly.texParam >> 23) & 0x7
	width := 8 << widthLog
	height := 8 << heightLog
	vramOffset := (poly.texParam & 0xFFFF) * 8

	tx := int(u) % width
	ty := int(v) % height
	if tx < 0 {
		tx += width
	}
	if ty < 0 {
		ty += height
	}

	switch format {
	case 2: // 4-color paletted
		addr := vramOffset + uint32(ty*width+tx)/4
		b := vram.readSpace8(vram.texture, addr)
		shift := uint(tx%4) * 2
		idx := (b >> shift) & 0x3
		pal := vram.readSpace16(vram.texPalette, poly.texPalBase*16+uint32(idx)*2)
		return bgr555(pal), true
	case 3: // 16-color paletted
		addr := vramOffset + uint32(ty*width+tx)/2
		b := vram.readSpace8(vram.texture, addr)
		var idx uint8
		if tx%2 == 0 {
			idx = b & 0xF
		} else {
			idx = b >> 4
		}
		pal := vram.readSpace16(vram.texPalette, poly.texPalBase*16+uint32(idx)*2)
		return bgr555(pal), true
	case 4: // 256-color paletted
		addr := vramOffset + uint32(ty*width+tx)
		idx := vram.readSpace8(vram.texture, addr)
		pal := vram.readSpace16(vram.texPalette, poly.texPalBase*16+uint32(idx)*2)
		return bgr555(pal), true
	default:
		return 0, false
	}
}
