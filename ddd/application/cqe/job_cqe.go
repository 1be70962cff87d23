package cqe

import (
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"medkit-service/ddd/domain/vo"
	"medkit-service/pkg/errno"
)

// CreateJobReq 创建作业请求. Download jobs carry a URL in Source, conversion jobs an uploaded file.
type CreateJobReq struct {
	Kind    string `json:"kind" form:"kind"`
	OwnerID string `json:"owner_id" form:"owner_id"`
	Source  string `json:"source" form:"source"`
	Quality string `json:"quality" form:"quality"`
	Format  string `json:"format" form:"format"`
	Preset  string `json:"preset" form:"preset"`

	Upload     io.Reader `json:"-" form:"-"`
	UploadName string    `json:"-" form:"-"`
	UploadSize int64     `json:"-" form:"-"`
}

// Validate 校验并规范化请求字段
func (req *CreateJobReq) Validate() error {
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if req.Kind == "" {
		req.Kind = vo.JobKindDownload.String()
	}
	kind := vo.JobKind(req.Kind)
	if !kind.IsValid() {
		return errno.ErrUnsupportedKind
	}

	req.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Format), "."))
	if req.Format == "" {
		return errno.NewBizError(errno.ErrMissingParam, errFormatRequired)
	}
	if !vo.IsSupportedOutput(kind, req.Format) {
		return errno.ErrUnsupportedFormat
	}

	quality, err := vo.ParseQuality(req.Quality)
	if err != nil {
		return errno.NewBizError(errno.ErrUnsupportedQuality, err)
	}
	req.Quality = quality.String()

	preset, err := vo.ParseEncodePreset(req.Preset)
	if err != nil {
		return errno.NewBizError(errno.ErrInvalidParam, err)
	}
	req.Preset = string(preset)

	if kind == vo.JobKindDownload {
		return req.validateSource()
	}
	return req.validateUpload()
}

func (req *CreateJobReq) validateSource() error {
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return errno.ErrSourceRequired
	}
	u, err := url.Parse(req.Source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errno.NewBizError(errno.ErrInvalidParam, errBadSourceURL)
	}
	return nil
}

func (req *CreateJobReq) validateUpload() error {
	if req.Upload == nil || req.UploadName == "" {
		return errno.ErrSourceRequired
	}
	from := vo.CategoryOf(filepath.Ext(req.UploadName))
	if from == "" {
		return errno.ErrUnsupportedFormat
	}
	if !vo.CanConvert(from, vo.CategoryOf(req.Format)) {
		return errno.NewBizError(errno.ErrUnsupportedFormat, errIncompatibleFormats)
	}
	return nil
}
