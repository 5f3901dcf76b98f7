/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"fmt"
	"net/http"
	"time"

	"github.com/neoproj/robo32/config"
	"github.com/neoproj/robo32/internal/request"
	"github.com/sirupsen/logrus"
)

const defaultHeader = "Error From Robo32 🐞"

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func newSlackMessage(header string, err error, at time.Time) slackMessage {
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: header, Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}}},
	}}
}

// SlackNotification posts err to a Slack incoming webhook.
func SlackNotification(webhookURL, header string, err error) error {
	payload, e := request.ToJsonReq(newSlackMessage(header, err, time.Now()))
	if e != nil {
		return e
	}

	req, e := http.NewRequest(http.MethodPost, webhookURL, payload)
	if e != nil {
		return e
	}

	// Slack answers with a plain "ok".
	_, e = request.Call(req, nil)
	return e
}

// NotifyError logs systemError and, when a Slack webhook is configured, reports it in the background.
func NotifyError(systemError error) {
	notify(defaultHeader, systemError)
}

// NotifyJobFailed reports a job that finished FAILED.
func NotifyJobFailed(jobID int64, cause error) {
	if cause == nil {
		cause = fmt.Errorf("job %d finished with status FAILED", jobID)
	} else {
		cause = fmt.Errorf("job %d failed: %w", jobID, cause)
	}
	notify(fmt.Sprintf("Job %d Failed 🚨", jobID), cause)
}

func notify(header string, systemError error) {
	go func() {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Debug(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl == "" {
			return
		}
		if err := SlackNotification(conf.Notification.Slack.WebhookUrl, header, systemError); err != nil {
			logrus.Warnf("slack notification failed: %v", err)
		}
	}()
}
