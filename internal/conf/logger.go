// Copyright 2024 EMQ Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conf

import (
	"io"
	"os"
	"path/filepath"
	"time"

	filename "github.com/keepeye/logrus-filename"
	"github.com/sirupsen/logrus"
	rotatelogs "github.com/yisaer/file-rotatelogs"
)

const logFileName = "planopt.log"

var (
	Log       *logrus.Logger
	logWriter io.Closer
)

func init() {
	InitLogger()
}

func InitLogger() {
	Log = logrus.New()
	filenameHook := filename.NewHook()
	filenameHook.Field = "file"
	Log.AddHook(filenameHook)

	Log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
		FullTimestamp:   true,
	})
	Log.Debugf("init with args %s", os.Args)
}

// SetupFileLog sends the log to a rotating file under dir, and also to stdout
// when console is set.
func SetupFileLog(dir string, rotateHours, maxAgeHours int, console bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if rotateHours <= 0 {
		rotateHours = 24
	}
	if maxAgeHours <= 0 {
		maxAgeHours = 72
	}
	file := filepath.Join(dir, logFileName)
	w, err := rotatelogs.New(
		file+".%Y-%m-%d_%H-%M-%S",
		rotatelogs.WithLinkName(file),
		rotatelogs.WithRotationTime(time.Hour*time.Duration(rotateHours)),
		rotatelogs.WithMaxAge(time.Hour*time.Duration(maxAgeHours)),
	)
	if err != nil {
		return err
	}
	CloseLogger()
	logWriter = w
	if console {
		Log.SetOutput(io.MultiWriter(os.Stdout, w))
	} else {
		Log.SetOutput(w)
	}
	return nil
}

func CloseLogger() {
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
