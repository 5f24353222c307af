package internal

import (
	"fmt"
	"image"
	"os"

	api "github.com/etesami/people-counting-system/api"
	"github.com/etesami/people-counting-system/svc-detector/internal/yolo"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	ratio    = 0.003921568627
	mean     = gocv.NewScalar(0, 0, 0, 0)
	swapRGB  = true
	padValue = gocv.NewScalar(144.0, 0, 0, 0)
)

// YoloV8 detector model
type DtConfig struct {
	Model          string
	ImageWidth     int
	ImageHeight    int
	ScoreThreshold float32
	NMSThreshold   float32
}

// Detector runs a YOLOv8 ONNX model and reports persons only. It is not
// safe for concurrent use.
type Detector struct {
	config      *DtConfig
	net         gocv.Net
	outputNames []string
}

// NewDetector loads the model once; Close releases it.
func NewDetector(c *DtConfig) (*Detector, error) {
	info, err := os.Stat(c.Model)
	if err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("model file is missing or empty: %v, %v", c.Model, err)
	}
	net := gocv.ReadNetFromONNX(c.Model)
	if net.Empty() {
		return nil, fmt.Errorf("error reading network model from: %v", c.Model)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	outputNames := getOutputNames(&net)
	if len(outputNames) == 0 {
		net.Close()
		return nil, fmt.Errorf("error reading output layer names")
	}
	log.Infof("Loaded detection model %s, outputs %v", c.Model, outputNames)
	return &Detector{config: c, net: net, outputNames: outputNames}, nil
}

func (d *Detector) Close() error {
	return d.net.Close()
}

// Detect returns the persons found in img, in img pixels.
func (d *Detector) Detect(img gocv.Mat) ([]api.Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	params := gocv.NewImageToBlobParams(ratio, image.Pt(d.config.ImageWidth, d.config.ImageHeight), mean, swapRGB, gocv.MatTypeCV32F, gocv.DataLayoutNCHW, gocv.PaddingModeLetterbox, padValue)
	blob := gocv.BlobFromImageWithParams(img, params)
	defer blob.Close()

	// feed the blob into the detector
	d.net.SetInput(blob, "")

	// run a forward pass thru the network
	probs := d.net.ForwardLayers(d.outputNames)
	defer func() {
		for _, prob := range probs {
			prob.Close()
		}
	}()
	if len(probs) == 0 {
		return nil, fmt.Errorf("no network output")
	}

	// yolov8 output is [1, 4+classes, anchors]
	size := probs[0].Size()
	if len(size) != 3 {
		return nil, fmt.Errorf("unexpected output dims %v", size)
	}
	data, err := probs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read network output: %w", err)
	}
	cands, err := yolo.Decode(data, size[1], size[2], yolo.PersonClass, d.config.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return []api.Detection{}, nil
	}

	boxes, scores := yolo.Split(cands)
	frame := image.Rect(0, 0, img.Cols(), img.Rows())
	iboxes := params.BlobRectsToImageRects(boxes, frame.Max)
	indices := gocv.NMSBoxes(iboxes, scores, d.config.ScoreThreshold, d.config.NMSThreshold)

	return yolo.ToDetections(iboxes, scores, indices, frame), nil
}

func getOutputNames(net *gocv.Net) []string {
	var outputLayers []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		layerName := layer.GetName()
		if layerName != "_input" {
			outputLayers = append(outputLayers, layerName)
		}
	}

	return outputLayers
}
