// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the mallocctl version",
		Run: func(cmd *cobra.Command, args []string) {
			printInfo("mallocctl %s\n", rootCmd.Version)
		},
	})
}
