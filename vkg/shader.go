package vkg

import (
	"fmt"
	"os"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

type ShaderModule struct {
	Device         *Device
	Name           string
	VKShaderModule vk.ShaderModule
}

// LoadShaderModuleFromFile creates a module from a SPIR-V file.
func (d *Device) LoadShaderModuleFromFile(file string) (*ShaderModule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return d.NewShaderModule(file, data)
}

// NewShaderModule creates a module from SPIR-V code.
func (d *Device) NewShaderModule(name string, code []byte) (*ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader %s: code size %d is not a multiple of 4", name, len(code))
	}
	var module vk.ShaderModule
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	if err := check("create shader module "+name, vk.CreateShaderModule(d.VKDevice, &info, nil, &module)); err != nil {
		return nil, err
	}
	return &ShaderModule{Device: d, Name: name, VKShaderModule: module}, nil
}

func (s *ShaderModule) StageInfo(stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.VKShaderModule,
		PName:  safeString(entryPoint),
	}
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}

func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
