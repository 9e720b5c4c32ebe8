// Command uploadart pushes the card artwork into the object store under
// the keys the catalog references. Local files are looked up by the
// base name of each card's object key.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"tarotreader/pkg/deck"
	"tarotreader/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	endpoint := flag.String("endpoint", os.Getenv("MINIO_ENDPOINT"), "minio endpoint")
	accessKey := flag.String("access-key", os.Getenv("MINIO_ACCESS_KEY"), "minio access key")
	secretKey := flag.String("secret-key", os.Getenv("MINIO_SECRET_KEY"), "minio secret key")
	bucket := flag.String("bucket", "tarot-artwork", "artwork bucket")
	useSSL := flag.Bool("ssl", false, "use TLS for the minio connection")
	dir := flag.String("dir", "artwork", "directory holding the card images")
	flag.Parse()

	if *endpoint == "" {
		log.Fatal("endpoint required (flag -endpoint or MINIO_ENDPOINT)")
	}

	art, err := storage.NewMinioStore(*endpoint, *accessKey, *secretKey, *bucket, *useSSL)
	if err != nil {
		log.Fatalf("failed to init artwork store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	uploaded := 0
	for _, card := range deck.Cards() {
		path := filepath.Join(*dir, filepath.Base(card.ImageKey))
		f, err := os.Open(path)
		if err != nil {
			log.Printf("skip %s: %v", card.Name, err)
			continue
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			log.Fatalf("stat %s: %v", path, err)
		}
		if err := art.Upload(ctx, card.ImageKey, f, info.Size(), "image/jpeg"); err != nil {
			f.Close()
			log.Fatalf("upload %s: %v", card.ImageKey, err)
		}
		f.Close()
		uploaded++
		log.Printf("uploaded %s -> %s", path, card.ImageKey)
	}
	log.Printf("done, %d of %d cards uploaded", uploaded, deck.Size())
}
