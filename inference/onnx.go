package inference

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// InitRuntime 加载 ONNX Runtime 动态库，只执行一次
func InitRuntime(libPath string) error {
	ortOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// onnxSession 一个会话及其预分配的输入输出张量
type onnxSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

func (s *onnxSession) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	for _, o := range s.outputs {
		o.Destroy()
	}
}

// sessionPool 会话不可重入，每次推理独占一个会话
type sessionPool struct {
	sessions chan *onnxSession
}

func newSessionPool(size int, create func() (*onnxSession, error)) (*sessionPool, error) {
	if size < 1 {
		size = 1
	}
	pool := &sessionPool{sessions: make(chan *onnxSession, size)}
	for i := 0; i < size; i++ {
		s, err := create()
		if err != nil {
			pool.close()
			return nil, fmt.Errorf("failed to create model session %d: %w", i, err)
		}
		pool.sessions <- s
	}
	return pool, nil
}

func (p *sessionPool) acquire(ctx context.Context) (*onnxSession, error) {
	select {
	case s := <-p.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *sessionPool) release(s *onnxSession) {
	p.sessions <- s
}

func (p *sessionPool) close() {
	for {
		select {
		case s := <-p.sessions:
			s.destroy()
		default:
			return
		}
	}
}

func createSession(path string, inputSize int, outputShapes []ort.Shape, outputNames []string) (*onnxSession, error) {
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(inputSize), int64(inputSize)), make([]float32, 3*inputSize*inputSize))
	if err != nil {
		return nil, err
	}
	s := &onnxSession{input: input}

	values := make([]ort.Value, 0, len(outputShapes))
	for _, shape := range outputShapes {
		out, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			s.destroy()
			return nil, err
		}
		s.outputs = append(s.outputs, out)
		values = append(values, out)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		s.destroy()
		return nil, err
	}
	defer options.Destroy()

	threads := max(1, runtime.NumCPU()/2)
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewAdvancedSession(path, []string{"images"}, outputNames, []ort.Value{input}, values, options)
	if err != nil {
		s.destroy()
		return nil, err
	}
	s.session = session
	return s, nil
}

// ONNXSegmenter 进程内 YOLOv8-seg 推理
type ONNXSegmenter struct {
	pool       *sessionPool
	inputSize  int
	numClasses int
	numCoeffs  int
	anchors    int
	protoSize  int
	iou        float32
}

func NewONNXSegmenter(cfg *config.ModelConfig) (*ONNXSegmenter, error) {
	s := &ONNXSegmenter{
		inputSize:  cfg.InputSize,
		numClasses: max(1, len(cfg.Classes)),
		numCoeffs:  cfg.MaskCoeffs,
		anchors:    anchorCount(cfg.InputSize),
		protoSize:  cfg.InputSize / 4,
		iou:        float32(cfg.IOUThreshold),
	}

	shapes := []ort.Shape{
		ort.NewShape(1, int64(4+s.numClasses+s.numCoeffs), int64(s.anchors)),
		ort.NewShape(1, int64(s.numCoeffs), int64(s.protoSize), int64(s.protoSize)),
	}
	pool, err := newSessionPool(cfg.PoolSize, func() (*onnxSession, error) {
		return createSession(cfg.Path, cfg.InputSize, shapes, []string{"output0", "output1"})
	})
	if err != nil {
		return nil, err
	}
	s.pool = pool

	utils.Logger.Info("onnx segmentation model loaded",
		zap.String("path", cfg.Path),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("anchors", s.anchors))
	return s, nil
}

func (s *ONNXSegmenter) PredictInstances(ctx context.Context, img image.Image, conf float64) ([]Instance, error) {
	session, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.release(session)

	imageToTensor(img, s.inputSize, session.input.GetData())
	if err := session.session.Run(); err != nil {
		return nil, fmt.Errorf("segmentation inference failed: %w", err)
	}

	out := session.outputs[0].GetData()
	proto := session.outputs[1].GetData()

	cands := decodeCandidates(out, s.anchors, s.numClasses, s.numCoeffs, float32(conf))
	cands = nms(cands, s.iou)

	b := img.Bounds()
	instances := make([]Instance, 0, len(cands))
	for _, c := range cands {
		instances = append(instances, Instance{
			Mask:       decodeMask(proto, s.protoSize, s.protoSize, c.coeffs, c.box, s.inputSize, b.Dx(), b.Dy()),
			Confidence: float64(c.score),
			ClassID:    c.classID,
		})
	}
	return instances, nil
}

func (s *ONNXSegmenter) Close() error {
	s.pool.close()
	return nil
}

// ONNXDetector 进程内 YOLOv8 检测推理
type ONNXDetector struct {
	pool      *sessionPool
	inputSize int
	classes   []string
	anchors   int
	iou       float32
}

func NewONNXDetector(cfg *config.ModelConfig) (*ONNXDetector, error) {
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("detection model requires class names")
	}
	d := &ONNXDetector{
		inputSize: cfg.InputSize,
		classes:   cfg.Classes,
		anchors:   anchorCount(cfg.InputSize),
		iou:       float32(cfg.IOUThreshold),
	}

	shapes := []ort.Shape{ort.NewShape(1, int64(4+len(d.classes)), int64(d.anchors))}
	pool, err := newSessionPool(cfg.PoolSize, func() (*onnxSession, error) {
		return createSession(cfg.Path, cfg.InputSize, shapes, []string{"output0"})
	})
	if err != nil {
		return nil, err
	}
	d.pool = pool

	utils.Logger.Info("onnx detection model loaded",
		zap.String("path", cfg.Path),
		zap.Strings("classes", d.classes))
	return d, nil
}

func (d *ONNXDetector) PredictBoxes(ctx context.Context, img image.Image, conf float64) ([]Box, error) {
	session, err := d.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.release(session)

	imageToTensor(img, d.inputSize, session.input.GetData())
	if err := session.session.Run(); err != nil {
		return nil, fmt.Errorf("detection inference failed: %w", err)
	}

	cands := decodeCandidates(session.outputs[0].GetData(), d.anchors, len(d.classes), 0, float32(conf))
	cands = nms(cands, d.iou)

	b := img.Bounds()
	return scaleBoxes(cands, d.classes, d.inputSize, b.Dx(), b.Dy()), nil
}

func (d *ONNXDetector) Close() error {
	d.pool.close()
	return nil
}

// scaleBoxes 将模型输入坐标映射回原图坐标
func scaleBoxes(cands []candidate, classes []string, inputSize, w, h int) []Box {
	sx := float64(w) / float64(inputSize)
	sy := float64(h) / float64(inputSize)

	boxes := make([]Box, 0, len(cands))
	for _, c := range cands {
		name := fmt.Sprintf("class_%d", c.classID)
		if c.classID < len(classes) {
			name = classes[c.classID]
		}
		boxes = append(boxes, Box{
			BBox: [4]float64{
				float64(c.box[0]) * sx,
				float64(c.box[1]) * sy,
				float64(c.box[2]) * sx,
				float64(c.box[3]) * sy,
			},
			Confidence: float64(c.score),
			ClassID:    c.classID,
			ClassName:  name,
		})
	}
	return boxes
}
