// Package contour traces contour lines (isolines) from an elevation raster that
// is delivered one scanline at a time.
//
// A Generator keeps two scanlines resident, walks every 2x2 neighbourhood of
// the pair, emits the line segments crossing each cell and stitches them onto
// open polylines. Polylines that were not extended while a scanline was
// processed can no longer grow; they are merged with a neighbour of the same
// level or handed to a Sink. Memory is bounded by the raster width plus the
// currently open polylines.
//
// Coordinates are in pixel/line space: the centre of pixel (col, row) is at
// (col+0.5, row+0.5). Contours stop half a pixel outside the outermost pixel
// centres and half a pixel inside any nodata area.
package contour
