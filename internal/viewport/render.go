package viewport

import (
	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/coords"
	"github.com/AntonyGarand/bs-map-tools/internal/scale"
)

// Render строит инструкции рендера для текущего состояния.
// Переворот оси применяется здесь и только здесь.
func (s *Session) Render() Frame {
	flip := s.opts.Flip
	f := Frame{
		Zoom:      s.zoom,
		Polylines: []Polyline{},
		Icons:     []Icon{},
		Labels:    []Label{},
	}

	if s.hasHover {
		lo, hi := coords.TileBounds(s.hover)
		f.Hover = rect(flip, lo, hi)
	}

	for _, ref := range s.regions() {
		f.Polylines = append(f.Polylines, Polyline{
			Points: flip.ApplyAll(ref.Room.Points()),
			Closed: true,
			Source: ref.Set,
		})
		f.Labels = append(f.Labels, Label{
			Text:   ref.Room.Name(),
			At:     flip.Apply(ref.Room.LabelAnchor()),
			Source: ref.Set,
		})
	}

	if s.mode == ModeRoom && len(s.draftPoints) > 0 {
		points := s.DraftPoints()
		if s.hasHover {
			points = append(points, s.hover.ToFloat())
		}
		f.Polylines = append(f.Polylines, Polyline{
			Points: flip.ApplyAll(points),
			Source: UserSource,
			Draft:  true,
		})
	}

	for _, m := range s.store.Markers() {
		f.Icons = append(f.Icons, s.icon(m, UserSource, false))
	}
	if s.catalog != nil {
		for _, m := range s.catalog.ActiveMarkers() {
			f.Icons = append(f.Icons, s.icon(m, m.Category, false))
		}
	}

	if s.mode == ModeMarker {
		if anchor, ok := s.pendingAnchor(); ok {
			w, h := s.markerIcon.Footprint()
			preview := annotation.Marker{
				Name:            s.markerName,
				IconID:          s.markerIcon.Image,
				FootprintWidth:  w,
				FootprintHeight: h,
				Anchor:          anchor,
			}
			f.Icons = append(f.Icons, s.icon(preview, UserSource, true))
		}
	}

	return f
}

func (s *Session) icon(m annotation.Marker, source string, preview bool) Icon {
	w, h := scale.IconSizePx(m.FootprintWidth, m.FootprintHeight, s.zoom)
	return Icon{
		Name:     m.Name,
		URL:      s.opts.IconURLPrefix + m.IconID,
		Center:   s.opts.Flip.Apply(m.Center()),
		WidthPx:  w,
		HeightPx: h,
		Source:   source,
		Preview:  preview,
	}
}
