package logutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/philschmid/deepspeed-sagemaker-example/pkg/fileutil"
)

func TestMultiWriter(t *testing.T) {
	tmpPath := fileutil.GetTempFilePath() + ".log"
	defer os.RemoveAll(tmpPath)

	lg, wr, logFile, err := NewWithStderrWriter("info", []string{tmpPath})
	if err != nil {
		t.Fatal(err)
	}
	defer logFile.Close()

	lg.Info("hi")
	fmt.Fprintf(wr, "hello %q\n", "test")
	fmt.Fprintf(wr, "hello %q\n", "test")

	b, err := os.ReadFile(tmpPath)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Println(string(b))
}
