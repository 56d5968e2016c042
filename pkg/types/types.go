package types

// NormalizedBox is a bounding box in the quantized token coordinate space.
// Coordinates are integers in [0, Q-1] where Q is the codec quantization
// resolution. Field order follows the token format: rows before columns.
type NormalizedBox struct {
	YMin int `json:"ymin"`
	XMin int `json:"xmin"`
	YMax int `json:"ymax"`
	XMax int `json:"xmax"`
}

// PixelBox is a bounding box in image pixel space.
type PixelBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b PixelBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box.
func (b PixelBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Contains reports whether the point (x, y) lies inside the box,
// boundary included.
func (b PixelBox) Contains(x, y float64) bool {
	return b.X1 <= x && x <= b.X2 && b.Y1 <= y && y <= b.Y2
}

// Detection is one decoded bounding box with its label. Index is the
// 0-based rank in decode order and is the canonical display and
// reference order everywhere downstream. NeedsTreatment is nil until
// the treatment classifier has run for this detection.
type Detection struct {
	Index          int      `json:"index"`
	Box            PixelBox `json:"bbox"`
	Label          string   `json:"label"`
	NeedsTreatment *bool    `json:"needs_treatment,omitempty"`
}

// Treated reports the classifier verdict, false when classification
// has not run yet.
func (d Detection) Treated() bool {
	return d.NeedsTreatment != nil && *d.NeedsTreatment
}

// BBoxRecord is one line of the detection training JSONL. Target fields
// hold codec-encoded detections joined by "; " at each label granularity.
type BBoxRecord struct {
	Image          string `json:"image"`
	Prompt         string `json:"prompt"`
	Target         string `json:"target"`
	TargetGroup    string `json:"target_group,omitempty"`
	TargetFallback string `json:"target_fallback,omitempty"`
	NumObjects     int    `json:"num_objects"`
}

// CropRecord is one line of a per-tooth crop dataset JSONL.
type CropRecord struct {
	Tooth     string `json:"tooth"`
	Treatment string `json:"treatment"`
	Diagnosis string `json:"diagnosis"`
	Filename  string `json:"filename"`
}

// AnnotatedObject is one labelled tooth in a source annotation file,
// with box corners already quantized to the codec coordinate space.
type AnnotatedObject struct {
	Tooth     string `json:"tooth"`
	Treatment string `json:"treatment"`
	Diagnosis string `json:"diagnosis"`
	X1        int    `json:"x1"`
	Y1        int    `json:"y1"`
	X2        int    `json:"x2"`
	Y2        int    `json:"y2"`
}

// NormalizedBox returns the object's corners as a codec-space box.
func (o AnnotatedObject) NormalizedBox() NormalizedBox {
	return NormalizedBox{YMin: o.Y1, XMin: o.X1, YMax: o.Y2, XMax: o.X2}
}

// AnnotatedImage is one source annotation entry: an image path plus
// every labelled tooth in it.
type AnnotatedImage struct {
	File    string            `json:"file"`
	Objects []AnnotatedObject `json:"objects"`
}
