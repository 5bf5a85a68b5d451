package domain

import (
	"strings"
	"time"
)

// Position is a single observer fix. It is never mutated; the next fix supersedes it.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters
	Timestamp time.Time `json:"timestamp"`
}

// Coordinate returns the position without accuracy or time.
func (p Position) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Address is a reverse-geocoded location. Any field may be empty.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
	Unknown bool   `json:"unknown,omitempty"`
}

// UnknownAddress is returned in place of an error when geocoding is unavailable.
var UnknownAddress = Address{Unknown: true}

// String formats the address as "street, city, region, country".
func (a Address) String() string {
	if a.Unknown {
		return "Unknown address"
	}
	if a == (Address{}) {
		return ""
	}
	return strings.Join([]string{a.Street, a.City, a.Region, a.Country}, ", ")
}

// Marker is a user-placed, geo-anchored annotation.
type Marker struct {
	ID         string     `json:"id"`
	Coordinate Coordinate `json:"coordinate"`
	Address    string     `json:"address"`
	PhotoRefs  []string   `json:"photos"`
	ImageURLs  []string   `json:"imageURLs"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Clone returns a deep copy so callers never share slice backing arrays.
func (m Marker) Clone() Marker {
	m.PhotoRefs = append([]string{}, m.PhotoRefs...)
	m.ImageURLs = append([]string{}, m.ImageURLs...)
	return m
}

// Document returns the remote document form of the marker.
func (m Marker) Document() MarkerDocument {
	c := m.Clone()
	return MarkerDocument{
		Coordinate: c.Coordinate,
		Address:    c.Address,
		Photos:     c.PhotoRefs,
		ImageURLs:  c.ImageURLs,
		CreatedAt:  c.CreatedAt,
	}
}

// Remote document field names for the marker array fields.
const (
	FieldPhotos    = "photos"
	FieldImageURLs = "imageURLs"
)

// MarkerDocument is the stored shape of a marker in the remote document store.
type MarkerDocument struct {
	Coordinate Coordinate `json:"coordinate" dynamodbav:"coordinate"`
	Address    string     `json:"address" dynamodbav:"address"`
	Photos     []string   `json:"photos" dynamodbav:"photos"`
	ImageURLs  []string   `json:"imageURLs" dynamodbav:"imageURLs"`
	CreatedAt  time.Time  `json:"createdAt" dynamodbav:"createdAt"`
}

// Marker builds the session view of a stored document.
func (d MarkerDocument) Marker(id string) Marker {
	return Marker{
		ID:         id,
		Coordinate: d.Coordinate,
		Address:    d.Address,
		PhotoRefs:  append([]string{}, d.Photos...),
		ImageURLs:  append([]string{}, d.ImageURLs...),
		CreatedAt:  d.CreatedAt,
	}
}

// UploadStatus is the state of one photo upload task.
type UploadStatus string

const (
	UploadQueued    UploadStatus = "queued"
	UploadUploading UploadStatus = "uploading"
	UploadSucceeded UploadStatus = "succeeded"
	UploadFailed    UploadStatus = "failed"
)

// UploadTask tracks the upload of one local photo to one marker.
type UploadTask struct {
	MarkerID   string       `json:"marker_id"`
	PhotoRef   string       `json:"photo_ref"`
	Status     UploadStatus `json:"status"`
	Progress   float64      `json:"progress"`
	RemoteURL  string       `json:"remote_url,omitempty"`
	Err        error        `json:"-"`
	Error      string       `json:"error,omitempty"`
	Attempt    int          `json:"attempt"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
}

// Live reports whether the task is still queued or uploading.
func (t UploadTask) Live() bool {
	return t.Status == UploadQueued || t.Status == UploadUploading
}
