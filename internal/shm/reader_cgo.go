//go:build cgo && linux

package shm

/*
#cgo LDFLAGS: -lrt -lpthread

#include <stdlib.h>
#include <stddef.h>
#include <stdint.h>
#include <time.h>
#include <sys/mman.h>
#include <fcntl.h>
#include <unistd.h>
#include <string.h>
#include <semaphore.h>
#include <errno.h>

#ifndef EINVAL
#define EINVAL 22
#endif

#define RING_BUFFER_SIZE 30
#define MAX_FRAME_SIZE (1920 * 1080 * 3 / 2)

// Frame structure matching shared_memory.h
typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int camera_id;
    int width;
    int height;
    int format;
    size_t data_size;
    float brightness_avg;
    uint32_t brightness_lux;
    uint8_t brightness_zone;
    uint8_t correction_applied;
    uint8_t _reserved[2];
    uint8_t data[MAX_FRAME_SIZE];
} Frame;

typedef struct {
    volatile uint32_t write_index;
    volatile uint32_t frame_interval_ms;
    uint8_t new_frame_sem[32];
    Frame frames[RING_BUFFER_SIZE];
} SharedFrameBuffer;

static SharedFrameBuffer* open_shm(const char* name) {
    int fd = shm_open(name, O_RDWR, 0666);
    if (fd == -1) {
        return NULL;
    }
    SharedFrameBuffer* shm = (SharedFrameBuffer*)mmap(
        NULL, sizeof(SharedFrameBuffer), PROT_READ | PROT_WRITE, MAP_SHARED, fd, 0);
    close(fd);
    if (shm == MAP_FAILED) {
        return NULL;
    }
    return shm;
}

// 0 on success, negative errno on error or timeout
static int wait_new_frame(SharedFrameBuffer* shm, int timeout_ms) {
    if (shm == NULL) {
        return -EINVAL;
    }
    if (timeout_ms <= 0) {
        if (sem_wait((sem_t*)&shm->new_frame_sem) != 0) {
            return -errno;
        }
        return 0;
    }

    struct timespec ts;
    if (clock_gettime(CLOCK_REALTIME, &ts) != 0) {
        return -errno;
    }
    ts.tv_sec += timeout_ms / 1000;
    ts.tv_nsec += (timeout_ms % 1000) * 1000000;
    if (ts.tv_nsec >= 1000000000) {
        ts.tv_sec += 1;
        ts.tv_nsec -= 1000000000;
    }
    if (sem_timedwait((sem_t*)&shm->new_frame_sem, &ts) == -1) {
        return -errno;
    }
    return 0;
}

static void close_shm(SharedFrameBuffer* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(SharedFrameBuffer));
    }
}

static size_t frame_header_size(void) {
    return offsetof(Frame, data);
}

static uint32_t get_write_index(SharedFrameBuffer* shm) {
    return shm->write_index;
}

// Copies the header and at most cap payload bytes of one slot
static int read_frame(SharedFrameBuffer* shm, uint32_t index, Frame* hdr, uint8_t* dst, size_t cap) {
    if (index >= RING_BUFFER_SIZE) {
        return -1;
    }
    Frame* src = &shm->frames[index];
    memcpy(hdr, src, offsetof(Frame, data));
    size_t n = hdr->data_size;
    if (n > MAX_FRAME_SIZE) {
        return -2;
    }
    if (n > cap) {
        n = cap;
    }
    memcpy(dst, src->data, n);
    hdr->data_size = n;
    return 0;
}
*/
import "C"
import (
	"fmt"
	"time"
	"unsafe"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

// Reader reads NV12 frames from shared memory
type Reader struct {
	shm       *C.SharedFrameBuffer
	shmName   string
	lastFrame uint64
	hdr       *C.Frame
	buf       []byte
}

// NewReader opens the shared memory ring, retrying once a second until wait elapses
func NewReader(shmName string, wait time.Duration) (*Reader, error) {
	if shmName == "" {
		shmName = DefaultName
	}

	cName := C.CString(shmName)
	defer C.free(unsafe.Pointer(cName))

	attempts := max(int(wait/time.Second), 1)
	var shm *C.SharedFrameBuffer
	for i := 0; i < attempts; i++ {
		shm = C.open_shm(cName)
		if shm != nil {
			break
		}
		if i%5 == 0 {
			logger.Info("Reader", "Waiting for shared memory %s to appear... (%d/%d)", shmName, i+1, attempts)
		}
		if i+1 < attempts {
			time.Sleep(time.Second)
		}
	}

	if shm == nil {
		return nil, fmt.Errorf("failed to open shared memory: %s (timeout after %s)", shmName, wait)
	}

	logger.Info("Reader", "Successfully opened shared memory: %s", shmName)

	return &Reader{
		shm:     shm,
		shmName: shmName,
		hdr:     (*C.Frame)(C.malloc(C.frame_header_size())),
		buf:     make([]byte, MaxFrameSize),
	}, nil
}

// Close closes the shared memory reader
func (r *Reader) Close() error {
	if r.shm != nil {
		C.close_shm(r.shm)
		r.shm = nil
	}
	if r.hdr != nil {
		C.free(unsafe.Pointer(r.hdr))
		r.hdr = nil
	}
	return nil
}

// ReadLatest returns the newest NV12 frame, or nil when there is no new frame.
// The returned descriptor owns a fresh copy of the pixel data.
func (r *Reader) ReadLatest() (*types.FrameDescriptor, error) {
	if r.shm == nil {
		return nil, ErrNotOpen
	}

	writeIndex := uint32(C.get_write_index(r.shm))
	if writeIndex == 0 {
		return nil, nil
	}
	index := (writeIndex - 1) % RingBufferSize

	rc := C.read_frame(r.shm, C.uint32_t(index), r.hdr,
		(*C.uint8_t)(unsafe.Pointer(&r.buf[0])), C.size_t(len(r.buf)))
	if rc != 0 {
		return nil, fmt.Errorf("shm: failed to read frame at index %d (rc=%d)", index, int(rc))
	}

	info := FrameInfo{
		FrameNumber: uint64(r.hdr.frame_number),
		Timestamp:   time.Unix(int64(r.hdr.timestamp.tv_sec), int64(r.hdr.timestamp.tv_nsec)),
		CameraID:    int(r.hdr.camera_id),
		Width:       int(r.hdr.width),
		Height:      int(r.hdr.height),
		Format:      int(r.hdr.format),
		Brightness:  float32(r.hdr.brightness_avg),
		Lux:         uint32(r.hdr.brightness_lux),
	}
	if info.FrameNumber == r.lastFrame && r.lastFrame != 0 {
		return nil, nil
	}
	r.lastFrame = info.FrameNumber

	n := int(r.hdr.data_size)
	data := make([]byte, n)
	copy(data, r.buf[:n])
	return newFrame(info, data)
}

// WaitNewFrame waits for the capture daemon's new-frame semaphore
func (r *Reader) WaitNewFrame(timeout time.Duration) error {
	if r.shm == nil {
		return ErrNotOpen
	}
	return waitError(int(C.wait_new_frame(r.shm, C.int(timeout.Milliseconds()))))
}
