package mask

import "math"

// Disk returns the integer offsets (dx, dy) with dx²+dy² <= r².
func Disk(r float64) [][2]int {
	n := int(math.Floor(r))
	var offsets [][2]int
	for dy := -n; dy <= n; dy++ {
		for dx := -n; dx <= n; dx++ {
			if float64(dx*dx+dy*dy) <= r*r {
				offsets = append(offsets, [2]int{dx, dy})
			}
		}
	}
	return offsets
}

// Erode keeps a pixel when every in-image pixel under the element is set.
func Erode(m *Binary, element [][2]int) *Binary {
	out := NewBinary(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pix[y*m.Width+x] {
				continue
			}
			keep := true
			for _, d := range element {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				if !m.Pix[ny*m.Width+nx] {
					keep = false
					break
				}
			}
			out.Pix[y*m.Width+x] = keep
		}
	}
	return out
}

// Dilate sets every in-image pixel under the element placed on a set pixel.
func Dilate(m *Binary, element [][2]int) *Binary {
	out := NewBinary(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pix[y*m.Width+x] {
				continue
			}
			for _, d := range element {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				out.Pix[ny*m.Width+nx] = true
			}
		}
	}
	return out
}
