package inference

import (
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

// candidate YOLO 输出中通过置信度过滤的候选框
type candidate struct {
	box     [4]float32 // x1, y1, x2, y2，模型输入坐标
	score   float32
	classID int
	coeffs  []float32
}

// imageToTensor 将图像缩放到 size×size 并转换为 NCHW、[0,1] 归一化的张量数据
func imageToTensor(img image.Image, size int, dst []float32) {
	resized := imaging.Resize(img, size, size, imaging.Linear)
	plane := size * size
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			dst[i] = float32(row[x*4]) / 255.0
			dst[plane+i] = float32(row[x*4+1]) / 255.0
			dst[2*plane+i] = float32(row[x*4+2]) / 255.0
		}
	}
}

// decodeCandidates 解析 [4+nc+nm, anchors] 通道优先的输出
func decodeCandidates(out []float32, anchors, numClasses, numCoeffs int, conf float32) []candidate {
	if anchors <= 0 || len(out) < (4+numClasses+numCoeffs)*anchors {
		return nil
	}

	var cands []candidate
	for i := 0; i < anchors; i++ {
		classID, best := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := out[(4+c)*anchors+i]; s > best {
				best = s
				classID = c
			}
		}
		if best < conf {
			continue
		}

		cx := out[i]
		cy := out[anchors+i]
		w := out[2*anchors+i]
		h := out[3*anchors+i]

		cand := candidate{
			box:     [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
			score:   best,
			classID: classID,
		}
		if numCoeffs > 0 {
			cand.coeffs = make([]float32, numCoeffs)
			for k := 0; k < numCoeffs; k++ {
				cand.coeffs[k] = out[(4+numClasses+k)*anchors+i]
			}
		}
		cands = append(cands, cand)
	}
	return cands
}

// nms 按类别做贪心非极大值抑制，结果按置信度降序
func nms(cands []candidate, iouThreshold float32) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	suppressed := make([]bool, len(cands))
	kept := make([]candidate, 0, len(cands))
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].classID != cands[i].classID {
				continue
			}
			if iou(cands[i].box, cands[j].box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	inter := max(0, x2-x1) * max(0, y2-y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// decodeMask 由原型掩码和实例系数还原 outW×outH 的二值掩码。
// 只保留检测框内部，sigmoid(x) > 0.5 等价于 x > 0。
func decodeMask(proto []float32, protoH, protoW int, coeffs []float32, box [4]float32, inputSize, outW, outH int) *image.Gray {
	plane := protoH * protoW
	logits := make([]float32, plane)
	for k, c := range coeffs {
		p := proto[k*plane : (k+1)*plane]
		for i := range logits {
			logits[i] += c * p[i]
		}
	}

	mask := image.NewGray(image.Rect(0, 0, outW, outH))
	sx := float32(inputSize) / float32(outW)
	sy := float32(inputSize) / float32(outH)
	px := float32(protoW) / float32(inputSize)
	py := float32(protoH) / float32(inputSize)

	for y := 0; y < outH; y++ {
		iy := (float32(y) + 0.5) * sy
		if iy < box[1] || iy > box[3] {
			continue
		}
		for x := 0; x < outW; x++ {
			ix := (float32(x) + 0.5) * sx
			if ix < box[0] || ix > box[2] {
				continue
			}
			if bilinear(logits, protoW, protoH, ix*px-0.5, iy*py-0.5) > 0 {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}

func bilinear(data []float32, w, h int, fx, fy float32) float32 {
	fx = clampf(fx, 0, float32(w-1))
	fy = clampf(fy, 0, float32(h-1))
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	dx, dy := fx-float32(x0), fy-float32(y0)

	top := data[y0*w+x0]*(1-dx) + data[y0*w+x1]*dx
	bottom := data[y1*w+x0]*(1-dx) + data[y1*w+x1]*dx
	return top*(1-dy) + bottom*dy
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// anchorCount YOLOv8 三个步长 (8,16,32) 的锚点总数
func anchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		s := inputSize / stride
		n += s * s
	}
	return n
}
