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

package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// configCommands prints the effective configuration with secrets masked.
func configCommands(app *robo32Instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "print the effective robo32 configuration",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			masked := *app.cnf
			masked.AuditStore.Dns = mask(masked.AuditStore.Dns)
			masked.PrimaryStore.Dns = mask(masked.PrimaryStore.Dns)
			masked.Redis.Dns = mask(masked.Redis.Dns)
			masked.Server.SecretKey = mask(masked.Server.SecretKey)

			data, err := json.MarshalIndent(masked, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
