package service

import "errors"

var (
	// ErrDecode 输入无法解析为图像或尺寸退化
	ErrDecode = errors.New("image could not be decoded")
	// ErrSegmentationUnavailable 背景去除或模型后端失败
	ErrSegmentationUnavailable = errors.New("segmentation backend unavailable")
	// ErrEmptyLeafRegion 未找到有效叶片轮廓
	ErrEmptyLeafRegion = errors.New("no leaf region found")
	// ErrModelNotReady 检测模型未在启动时加载
	ErrModelNotReady = errors.New("detection model not loaded")
	// ErrQueueFull 处理队列等待超时
	ErrQueueFull = errors.New("processing queue is full")
)
