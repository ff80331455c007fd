package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Semaphore is a binary semaphore.
type Semaphore struct {
	Device      *Device
	VKSemaphore vk.Semaphore
}

// NewSemaphore creates a binary semaphore.
func (d *Device) NewSemaphore() (inflight.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sema vk.Semaphore
	if err := check("create semaphore", vk.CreateSemaphore(d.VKDevice, &info, nil, &sema)); err != nil {
		return nil, err
	}
	return &Semaphore{Device: d, VKSemaphore: sema}, nil
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.Device.VKDevice, s.VKSemaphore, nil)
}

func vkSemaphore(s inflight.Semaphore) (vk.Semaphore, error) {
	vs, ok := s.(*Semaphore)
	if !ok {
		return vk.NullSemaphore, fmt.Errorf("semaphore %T is not a vulkan semaphore", s)
	}
	return vs.VKSemaphore, nil
}
