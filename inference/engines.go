// Package inference - Inference engine interface and implementations
package inference

// EngineType is the type of the engine
type EngineType string

const (
	// EngineDarknet loads darknet cfg/weights pairs through the OpenCV dnn module.
	EngineDarknet EngineType = "darknet"
	// EngineONNX is the ONNX engine that uses the onnxruntime library.
	EngineONNX EngineType = "onnx"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineDarknet, EngineONNX}
