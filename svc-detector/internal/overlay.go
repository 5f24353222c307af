package internal

import (
	"fmt"
	"image"
	"image/color"

	api "github.com/etesami/people-counting-system/api"
	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/etesami/people-counting-system/pkg/zone"
	"gocv.io/x/gocv"
)

var (
	trackColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	polygonColor = color.RGBA{R: 255, G: 200, B: 0, A: 0}
	lineColor    = color.RGBA{R: 255, G: 0, B: 80, A: 0}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

func toImagePoints(pts []geometry.Point) []image.Point {
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		out[i] = image.Pt(p.X, p.Y)
	}
	return out
}

// DrawOverlay draws the zones, the tracked boxes with their ids and the head
// count onto img.
func DrawOverlay(img *gocv.Mat, zones []zone.Zone, tracks []api.Track) {
	for _, z := range zones {
		pts := toImagePoints(z.Points())
		switch z.Shape.(type) {
		case zone.Polygon:
			pv := gocv.NewPointVectorFromPoints(pts)
			ptsVec := gocv.NewPointsVector()
			ptsVec.Append(pv)
			gocv.Polylines(img, ptsVec, true, polygonColor, 2)
			ptsVec.Close()
			pv.Close()
		case zone.Line:
			gocv.ArrowedLine(img, pts[0], pts[1], lineColor, 2)
		default:
			continue
		}
		gocv.PutText(img, z.Name, image.Pt(pts[0].X+4, pts[0].Y+14), gocv.FontHersheySimplex, 0.5, textColor, 1)
	}

	for _, tr := range tracks {
		gocv.Rectangle(img, image.Rect(tr.X1, tr.Y1, tr.X2, tr.Y2), trackColor, 2)
		gocv.PutText(img, fmt.Sprintf("ID %d", tr.Id), image.Pt(tr.X1, max(0, tr.Y1-6)), gocv.FontHersheySimplex, 0.5, trackColor, 1)
	}

	gocv.PutText(img, fmt.Sprintf("People: %d", len(tracks)), image.Pt(10, 24), gocv.FontHersheySimplex, 0.7, textColor, 2)
}
