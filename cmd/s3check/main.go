// Command s3check exercises an S3-compatible emote backend end to end:
// slot registration, listing, image creation, rename and delete. Point it
// at MinIO for local verification.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	s3backend "github.com/bmintz/emoji-vacuum/pkg/emotepool/backend/s3"
)

func main() {
	region := flag.String("region", "us-east-1", "AWS region")
	bucket := flag.String("bucket", "", "S3 bucket name")
	accessKey := flag.String("access-key", "", "AWS access key ID")
	secretKey := flag.String("secret-key", "", "AWS secret access key")
	endpoint := flag.String("endpoint", "", "Custom S3 endpoint (for MinIO, etc.)")
	usePathStyle := flag.Bool("use-path-style", false, "Use path-style addressing")

	useMinio := flag.Bool("use-minio", false, "Use MinIO defaults")
	minioEndpoint := flag.String("minio-endpoint", "http://localhost:9000", "MinIO server endpoint")

	slot := flag.Int64("slot", 900000, "Slot id for the test round trip")
	owner := flag.Int64("owner", 1, "Owner id written to the slot marker")

	flag.Parse()

	if *useMinio {
		*endpoint = *minioEndpoint
		*usePathStyle = true
		if *accessKey == "" {
			*accessKey = "minioadmin"
		}
		if *secretKey == "" {
			*secretKey = "minioadmin"
		}
	}

	if *bucket == "" {
		log.Fatal("Bucket name is required")
	}

	backend, err := s3backend.New(s3backend.Config{
		Region:          *region,
		Bucket:          *bucket,
		AccessKeyID:     *accessKey,
		SecretAccessKey: *secretKey,
		Endpoint:        *endpoint,
		UsePathStyle:    *usePathStyle,
	})
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}

	ctx := context.Background()
	if err := run(ctx, backend, *slot, *owner); err != nil {
		log.Fatalf("Check failed: %v", err)
	}
	fmt.Println("All checks passed")
}

func run(ctx context.Context, backend *s3backend.Backend, slot, owner int64) error {
	fmt.Fprintln(os.Stderr, "registering slot marker...")
	info := emotepool.SlotInfo{ID: slot, Name: fmt.Sprintf("EmojiBackend check %d", slot), Owner: owner}
	if err := backend.RegisterSlot(ctx, info); err != nil {
		return fmt.Errorf("register slot: %w", err)
	}

	fmt.Fprintln(os.Stderr, "listing slots...")
	slots, err := backend.ListSlots(ctx)
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}
	var found bool
	for _, s := range slots {
		if s.ID == slot {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("slot %d missing from listing", slot)
	}

	fmt.Fprintln(os.Stderr, "creating test image...")
	id, err := backend.Create(ctx, slot, "s3check", emotepool.KindStatic, []byte("not actually a png"))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	fmt.Fprintln(os.Stderr, "renaming test image...")
	if err := backend.Rename(ctx, slot, id, "s3check_renamed"); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	fmt.Fprintln(os.Stderr, "deleting test image...")
	if err := backend.Delete(ctx, slot, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	// A second delete must report the image as gone.
	if err := backend.Delete(ctx, slot, id); !errors.Is(err, emotepool.ErrBackendNotFound) {
		return fmt.Errorf("expected missing-image error on double delete, got: %v", err)
	}
	return nil
}
