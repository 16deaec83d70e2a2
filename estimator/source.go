package estimator

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_s3_v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// sourceBundleName is the object name the SageMaker training toolkit expects.
const sourceBundleName = "sourcedir.tar.gz"

// packSource writes a gzipped tarball of the source directory.
// Hidden directories and previously packed bundles are skipped.
func packSource(dir string, entryPoint string) ([]byte, error) {
	if !filepath.IsAbs(dir) {
		var err error
		dir, err = filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(filepath.Join(dir, entryPoint)); err != nil {
		return nil, fmt.Errorf("entry point %q not found under %q (%v)", entryPoint, dir, err)
	}

	buf := new(bytes.Buffer)
	gw := gzip.NewWriter(buf)
	tw := tar.NewWriter(gw)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || d.Name() == sourceBundleName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err = tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// uploadSource packs the source directory and uploads the bundle to the
// artifact bucket, recording the source S3 URI.
func (ts *Estimator) uploadSource(ctx context.Context) error {
	d, err := packSource(ts.cfg.SourceDir, ts.cfg.EntryPoint)
	if err != nil {
		return fmt.Errorf("failed to pack source (%w)", err)
	}

	key := fmt.Sprintf("%s/source/%s", ts.cfg.Name, sourceBundleName)
	ts.lg.Info("uploading source bundle",
		zap.String("source-dir", ts.cfg.SourceDir),
		zap.String("s3-bucket-name", ts.cfg.S3BucketName),
		zap.String("s3-key", key),
		zap.String("size", humanize.Bytes(uint64(len(d)))),
	)
	_, err = ts.s3API.PutObject(ctx, &aws_s3_v2.PutObjectInput{
		Bucket: aws_v2.String(ts.cfg.S3BucketName),
		Key:    aws_v2.String(key),
		Body:   bytes.NewReader(d),
	})
	if err != nil {
		return fmt.Errorf("failed to upload source bundle (%w)", err)
	}

	ts.cfg.SourceS3URI = fmt.Sprintf("s3://%s/%s", ts.cfg.S3BucketName, key)
	if ts.cfg.OutputS3URI == "" {
		ts.cfg.OutputS3URI = fmt.Sprintf("s3://%s/%s/output", ts.cfg.S3BucketName, ts.cfg.Name)
	}
	ts.cfg.Sync()

	ts.lg.Info("uploaded source bundle", zap.String("source-s3-uri", ts.cfg.SourceS3URI))
	return nil
}
