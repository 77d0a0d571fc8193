package main

import (
	"io"

	"github.com/sirupsen/logrus"

	"dqx0.com/go/httpserv/httpserv"
)

func main() {
	s, err := httpserv.New(httpserv.Config{Addr: ":8080"})
	if err != nil {
		logrus.WithError(err).Fatal("bind failed")
	}
	logrus.WithField("addr", s.Addr().String()).Info("echo server up")

	for rq := range s.Incoming() {
		go func(rq *httpserv.Request) {
			body, err := io.ReadAll(rq.Body())
			if err != nil {
				logrus.WithError(err).Warn("body read failed")
				_ = rq.Close()
				return
			}
			resp := httpserv.ResponseFromBytes(body)
			if len(body) == 0 {
				resp = httpserv.ResponseFromString(rq.Method().String() + " " + rq.URL() + "\n")
			}
			if err := rq.Respond(resp); err != nil {
				logrus.WithError(err).Warn("respond failed")
			}
		}(rq)
	}
}
