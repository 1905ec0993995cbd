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

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/internal/server"
)

var Version = "unknown"

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "the location of the planopt yaml file, defaults are used when empty",
}

func flagsOf(c *cli.Context) (plan.Flags, error) {
	st, err := plan.ParseStatementKind(c.String("statement"))
	if err != nil {
		return plan.Flags{}, err
	}
	f := plan.Flags{
		CBOSucceeded:         c.Bool("cbo"),
		Statement:            st,
		Engine:               plan.Engine(c.String("engine")),
		ExplainSkipExecution: c.Bool("explain-skip-execution"),
	}
	return f, f.Validate()
}

var compilationFlags = []cli.Flag{
	configFlag,
	cli.StringFlag{
		Name:  "engine, e",
		Value: string(plan.EngineMR),
		Usage: "the execution engine, mr or tez",
	},
	cli.StringFlag{
		Name:  "statement, s",
		Value: plan.Select.String(),
		Usage: "the statement kind: SELECT, INSERT, MERGE, UPDATE, DELETE or CTAS",
	},
	cli.BoolFlag{
		Name:  "cbo",
		Usage: "the cost based optimizer already rewrote the plan",
	},
	cli.BoolFlag{
		Name:  "explain-skip-execution",
		Usage: "the compilation serves an EXPLAIN that skips execution",
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "planopt"
	app.Usage = "sequence and run the plan optimization passes"
	app.Version = Version

	app.Commands = []cli.Command{
		{
			Name:  "pipeline",
			Usage: "pipeline [-c planopt.yaml] [--engine tez] [--statement INSERT] [--cbo] [--explain-skip-execution] [--json]",
			Flags: append(compilationFlags, cli.BoolFlag{
				Name:  "json",
				Usage: "print the pipeline as json",
			}),
			Action: func(c *cli.Context) error {
				if err := conf.InitConf(c.String("config")); err != nil {
					return cli.NewExitError(err, 1)
				}
				opt, err := conf.Config.OptimizerOption()
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				flags, err := flagsOf(c)
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				if err := printPipeline(os.Stdout, opt, flags, c.Bool("json")); err != nil {
					return cli.NewExitError(err, 1)
				}
				return nil
			},
		},
		{
			Name:  "bench",
			Usage: "bench [-c planopt.yaml] [--plan join] [-n 1000] [--trace]",
			Flags: append(compilationFlags,
				cli.StringFlag{
					Name:  "plan, p",
					Value: samplePlanSelect,
					Usage: "the sample plan to optimize: select, join or random",
				},
				cli.IntFlag{
					Name:  "iterations, n",
					Value: 100,
					Usage: "the number of compilations to run",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "the seed of the random plans",
				},
				cli.BoolFlag{
					Name:  "trace",
					Usage: "print the span tree of the last compilation",
				},
			),
			Action: func(c *cli.Context) error {
				if err := conf.InitConf(c.String("config")); err != nil {
					return cli.NewExitError(err, 1)
				}
				opt, err := conf.Config.OptimizerOption()
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				flags, err := flagsOf(c)
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				b := benchOptions{
					plan:       c.String("plan"),
					iterations: c.Int("iterations"),
					seed:       c.Int64("seed"),
					trace:      c.Bool("trace"),
				}
				if err := runBench(os.Stdout, opt, flags, b); err != nil {
					return cli.NewExitError(err, 1)
				}
				return nil
			},
		},
		{
			Name:  "serve",
			Usage: "serve [-c planopt.yaml]",
			Flags: []cli.Flag{configFlag},
			Action: func(c *cli.Context) error {
				if err := server.StartUp(Version, c.String("config")); err != nil {
					return cli.NewExitError(err, 1)
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
