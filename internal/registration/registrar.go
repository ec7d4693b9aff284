// Package registration builds a student's canonical face template from a
// fixed set of enrollment images.
package registration

import (
	"context"
	"log"
	"time"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/faceclient"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/imagecheck"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/queue"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/student"
)

// EnrollImageCount is the exact number of enrollment images required.
const EnrollImageCount = 5

// TemplateStore is the persistence the registrar needs.
type TemplateStore interface {
	Get(ctx context.Context, id string) (*student.Student, error)
	ReplaceTemplate(ctx context.Context, studentID string, embedding []float64, imagePaths []string) (*student.Template, error)
}

// ImageStore keeps the enrollment source images.
type ImageStore interface {
	Save(studentID string, data []byte) (string, error)
	Remove(paths ...string)
}

// Registrar executes enrollment. It does not decide re-registration
// eligibility; the caller passes approvedUpdate once the approval
// workflow has run.
type Registrar struct {
	students   TemplateStore
	images     ImageStore
	recognizer faceclient.Recognizer
	audit      queue.Queue // may be nil
	maxImage   int64
}

// NewRegistrar wires the registrar.
func NewRegistrar(students TemplateStore, images ImageStore, recognizer faceclient.Recognizer, audit queue.Queue, maxImage int64) *Registrar {
	return &Registrar{
		students:   students,
		images:     images,
		recognizer: recognizer,
		audit:      audit,
		maxImage:   maxImage,
	}
}

// Register validates all five images locally, obtains one embedding per
// image, and commits the element-wise mean as the new active template.
// The first failing image aborts the whole registration; nothing partial
// persists.
func (r *Registrar) Register(ctx context.Context, studentID string, images [][]byte, approvedUpdate bool) (*student.Template, error) {
	if len(images) != EnrollImageCount {
		return nil, apperr.Newf(apperr.Validation, apperr.CodeInvalidImage,
			"exactly %d images required, got %d", EnrollImageCount, len(images))
	}

	stu, err := r.students.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if stu == nil {
		return nil, apperr.New(apperr.NotFound, apperr.CodeStudentNotFound, "student not found")
	}
	if stu.FaceRegistered && !approvedUpdate {
		return nil, apperr.New(apperr.Conflict, apperr.CodeNotPermitted,
			"face already registered; re-registration requires an approved update request")
	}

	// All local validation happens before any network call.
	for i, img := range images {
		if err := imagecheck.Check(img, r.maxImage); err != nil {
			return nil, imageErr(i, err)
		}
	}

	var (
		sum   []float64
		paths []string
	)
	for i, img := range images {
		path, err := r.images.Save(studentID, img)
		if err != nil {
			r.images.Remove(paths...)
			return nil, err
		}
		paths = append(paths, path)

		emb, err := r.recognizer.ProcessFace(ctx, img, "enroll.jpg", studentID)
		if err != nil {
			r.images.Remove(paths...)
			return nil, imageErr(i, err)
		}
		if sum == nil {
			sum = make([]float64, len(emb))
		} else if len(emb) != len(sum) {
			// Service contract violation; abort without partial writes.
			r.images.Remove(paths...)
			return nil, apperr.Newf(apperr.Consistency, apperr.CodeDimensionMismatch,
				"image %d embedding has %d dimensions, expected %d", i+1, len(emb), len(sum))
		}
		for j, v := range emb {
			sum[j] += v
		}
	}

	mean := make([]float64, len(sum))
	for j, v := range sum {
		mean[j] = v / float64(EnrollImageCount)
	}

	tmpl, err := r.students.ReplaceTemplate(ctx, studentID, mean, paths)
	if err != nil {
		r.images.Remove(paths...)
		return nil, err
	}

	r.publish(ctx, studentID, tmpl.ID)
	return tmpl, nil
}

// imageErr wraps a per-image failure with the offending image's ordinal
// so callers can tell which capture to redo.
func imageErr(index int, err error) error {
	if ae, ok := err.(*apperr.Error); ok {
		return apperr.Newf(ae.Kind, ae.Code, "image %d: %s", index+1, ae.Message)
	}
	return err
}

func (r *Registrar) publish(ctx context.Context, studentID, templateID string) {
	if r.audit == nil {
		return
	}
	evt := queue.Event{
		OccurredAt: time.Now().UTC(),
		Actor:      studentID,
		Action:     "face.register",
		Subject:    templateID,
		Detail:     "face template replaced",
	}
	if err := r.audit.Publish(ctx, evt); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
