// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// chainctl is a small maintenance utility which inspects the block database
// of an emberd node while the node is offline.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gitlab.com/embercoin/emberd/database"
	_ "gitlab.com/embercoin/emberd/database/badgerdb"
	_ "gitlab.com/embercoin/emberd/database/leveldb"
	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/blockchain"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/chaincfg"
)

func main() {
	app := &App{}
	cliApp := &cli.App{
		Name:     "chainctl",
		Usage:    "inspect and export the emberd block database",
		Flags:    app.InitFlags(),
		Before:   app.InitCfg,
		Commands: app.getCommands(),
	}

	err := cliApp.Run(os.Args)
	if err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

// App carries the resolved configuration shared by all commands.
type App struct {
	dataDir string
	dbType  string
	params  *chaincfg.Params
}

func (app *App) InitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "datadir",
			Aliases: []string{"b"},
			Value:   filepath.Join(emberutil.AppDataDir("emberd", false), "data"),
			Usage:   "emberd data directory",
		},
		&cli.StringFlag{
			Name:  "net",
			Value: "mainnet",
			Usage: "network to operate on: mainnet, testnet or simnet",
		},
		&cli.StringFlag{
			Name:  "dbtype",
			Value: "leveldb",
			Usage: "database backend of the node",
		},
	}
}

func (app *App) InitCfg(c *cli.Context) error {
	app.dataDir = c.String("datadir")
	app.dbType = c.String("dbtype")

	switch net := c.String("net"); net {
	case "mainnet":
		app.params = &chaincfg.MainNetParams
	case "testnet":
		app.params = &chaincfg.TestNetParams
	case "simnet":
		app.params = &chaincfg.SimNetParams
	default:
		return errors.Errorf("unknown network %q", net)
	}
	return nil
}

func (app *App) getCommands() cli.Commands {
	return []*cli.Command{
		{
			Name:   "state",
			Usage:  "print the best chain state",
			Action: app.stateCmd,
		},
		{
			Name:   "export",
			Usage:  "export per-block statistics of the main chain to a CSV file",
			Action: app.exportCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Value:   "blocks.csv",
					Usage:   "path of the CSV file to write",
				},
			},
		},
		{
			Name:   "deployment",
			Usage:  "print the rule change deployment states at the chain tip",
			Action: app.deploymentCmd,
		},
	}
}

// openDB opens the node's block database.  The database must already exist,
// chainctl never creates one.
func (app *App) openDB() (database.DB, error) {
	dbPath := filepath.Join(app.dataDir, app.params.Name, "blocks_"+app.dbType)
	db, err := database.Open(app.dbType, dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open database at %s", dbPath)
	}
	return db, nil
}

// stateCmd prints the serialized best chain state stored in the database.
func (app *App) stateCmd(*cli.Context) error {
	db, err := app.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(dbTx database.Tx) error {
		serialized := dbTx.Metadata().Get(chaindata.ChainStateKeyName)
		if serialized == nil {
			return errors.New("no chain state found, is the data directory correct?")
		}

		state, err := chaindata.DeserializeBestChainState(serialized)
		if err != nil {
			return err
		}

		fmt.Printf("network:     %s\n", app.params.Name)
		fmt.Printf("best hash:   %s\n", state.Hash)
		fmt.Printf("height:      %d\n", state.Height)
		fmt.Printf("total txns:  %d\n", state.TotalTxns)
		fmt.Printf("total coins: %d\n", state.TotalCoins)
		fmt.Printf("total value: %s\n", emberutil.Amount(state.TotalValue))
		fmt.Printf("chain work:  %s\n", state.WorkSum)
		return nil
	})
}

// exportCmd walks the main chain from genesis to the tip and writes one CSV
// row per block.
func (app *App) exportCmd(c *cli.Context) error {
	db, err := app.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var rows []BlockRow
	err = db.View(func(dbTx database.Tx) error {
		serialized := dbTx.Metadata().Get(chaindata.ChainStateKeyName)
		if serialized == nil {
			return errors.New("no chain state found, is the data directory correct?")
		}
		state, err := chaindata.DeserializeBestChainState(serialized)
		if err != nil {
			return err
		}

		repo := chaindata.RepoTx(dbTx)
		rows = make([]BlockRow, 0, state.Height+1)
		for height := int32(0); height <= int32(state.Height); height++ {
			hash, err := repo.FetchHashByHeight(height)
			if err != nil {
				return err
			}
			block, err := repo.FetchBlockByHash(hash)
			if err != nil {
				return err
			}
			block.SetHeight(height)
			rows = append(rows, newBlockRow(block))
		}
		return nil
	})
	if err != nil {
		return err
	}

	storage := NewCSVStorage(c.String("output"))
	if err := storage.SaveRows(rows); err != nil {
		return err
	}

	fmt.Printf("exported %d blocks to %s\n", len(rows), c.String("output"))
	return nil
}

// deploymentCmd loads the chain and reports the threshold state of every
// defined rule change deployment at the current tip.
func (app *App) deploymentCmd(*cli.Context) error {
	db, err := app.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	chain, err := blockchain.New(&blockchain.Config{
		DB:          db,
		ChainParams: app.params,
		TimeSource:  chaindata.NewMedianTime(),
	})
	if err != nil {
		return err
	}

	best := chain.BestSnapshot()
	fmt.Printf("chain tip: %s (height %d)\n\n", best.Hash, best.Height)

	deploymentNames := map[uint32]string{
		chaincfg.DeploymentTestDummy: "testdummy",
		chaincfg.DeploymentCSV:       "csv",
		chaincfg.DeploymentSegwit:    "segwit",
	}
	for id := uint32(0); id < chaincfg.DefinedDeployments; id++ {
		state, err := chain.ThresholdState(id)
		if err != nil {
			return err
		}

		name := deploymentNames[id]
		if name == "" {
			name = fmt.Sprintf("deployment %d", id)
		}
		fmt.Printf("%-10s %s\n", name, state)
	}
	return nil
}
