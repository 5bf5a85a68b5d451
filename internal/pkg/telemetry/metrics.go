package telemetry

// Span names used for tracing the marker lifecycle.
const (
	SpanPlaceMarker   = "markers.place"
	SpanLoadMarkers   = "markers.load_all"
	SpanPhotoUpload   = "uploads.run"
	SpanGeocode       = "geocode.resolve"
	SpanLocationStart = "location.start"
)

// Span attribute keys.
const (
	AttrMarkerID = "fieldpins.marker_id"
	AttrPhotoRef = "fieldpins.photo_ref"
	AttrAttempt  = "fieldpins.attempt"
	AttrCacheKey = "fieldpins.cache_key"
	AttrCount    = "fieldpins.count"
)
