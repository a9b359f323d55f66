package extract

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	s3client "archrag/pkg/s3"
	"archrag/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FetchCorpus downloads every PDF under an s3://bucket/prefix URI into a
// temp directory, preserving the first path segment below the prefix as the
// category directory. The returned cleanup removes the temp tree.
func FetchCorpus(ctx context.Context, uri string) (string, func(), error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", func() {}, err
	}
	bucket := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	cli, err := s3client.GetClient(ctx)
	if err != nil {
		return "", func() {}, err
	}

	dir, err := os.MkdirTemp("", "archrag-corpus-")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	count := 0
	paginator := s3.NewListObjectsV2Paginator(cli, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.EqualFold(path.Ext(key), ".pdf") {
				continue
			}
			rel := strings.TrimPrefix(key, prefix)
			parts := strings.SplitN(rel, "/", 2)
			if len(parts) != 2 {
				// objects directly under the prefix have no category
				continue
			}
			category, base := parts[0], path.Base(rel)

			local := filepath.Join(dir, category, base)
			if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
				cleanup()
				return "", func() {}, err
			}
			if err := download(ctx, cli, bucket, key, local); err != nil {
				cleanup()
				return "", func() {}, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
			}
			count++
		}
	}
	logger.Info("fetched %d PDF(s) from s3://%s/%s", count, bucket, prefix)
	return dir, cleanup, nil
}

func download(ctx context.Context, cli *s3.Client, bucket, key, local string) error {
	out, err := cli.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(local)
		return err
	}
	return f.Close()
}
